package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

const testCompany = "fleet-1"

const (
	submitterId = 10
	masterId    = 20
	chiefId     = 30
	relieverId  = 40
	bosunId     = 50
	dpaId       = 60
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Use(config.NewTenantGuardPlugin()); err != nil {
		t.Fatalf("tenant guard: %v", err)
	}
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func userContext(userId int, role string) context.Context {
	ctx := context.Background()
	ctx = utils.SetCompanyIdInContext(ctx, testCompany)
	ctx = utils.SetUserIdInContext(ctx, userId)
	ctx = utils.SetUserNameInContext(ctx, role)
	ctx = utils.SetUserRoleInContext(ctx, role)
	ctx = utils.SetAuthenticatedInContext(ctx, true)
	ctx = utils.SetCorrelationIdInContext(ctx, "wf-test")
	return ctx
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return r.err
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Kind)
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	svc      *SubmissionService
	notifier *recordingNotifier
	template *models.FormTemplateVersion
}

func berthChecklist() *models.NewTemplateVersion {
	return &models.NewTemplateVersion{
		TemplateCode: "ism-berth",
		Name:         "Berthing checklist",
		Recurrence:   models.RecurrencePerVoyage,
		FormSchema: models.FormSchema{Fields: []models.FieldSpec{
			{Key: "port", Label: "Port", Kind: models.FieldKindText, Required: true},
			{Key: "berth", Label: "Berth", Kind: models.FieldKindText},
			{Key: "crew_count", Label: "Crew on board", Kind: models.FieldKindNumber, Required: true,
				Number: &models.NumberField{Integer: true}},
		}},
		RequiredSigners: []models.RequiredSigner{
			{Role: "MASTER", Order: 1, IsMandatory: true},
			{Role: "CHIEF_OFFICER", Order: 2, IsMandatory: true},
			{Role: "BOSUN", Order: 3, IsMandatory: false},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewSubmissionService(db, ServiceDeps{Notifier: notifier})
	v, err := NewTemplateRegistry(db).Publish(userContext(1, "ADMIN"), berthChecklist())
	if err != nil {
		t.Fatalf("publish template: %v", err)
	}
	return &fixture{db: db, svc: svc, notifier: notifier, template: v}
}

func completeData() map[string]interface{} {
	return map[string]interface{}{"port": "Rotterdam", "berth": "B7", "crew_count": 21}
}

func (f *fixture) create(t *testing.T, data map[string]interface{}) *models.Submission {
	t.Helper()
	sub, err := f.svc.Create(userContext(submitterId, "OFFICER"), f.template.TemplateId, CreateContext{ScopeAbbr: "mvk"}, data)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return sub
}

// pending returns a submission that is waiting for signatures.
func (f *fixture) pending(t *testing.T) *models.Submission {
	t.Helper()
	sub := f.create(t, completeData())
	ctx := userContext(submitterId, "OFFICER")
	if _, err := f.svc.Submit(ctx, sub.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	out, err := f.svc.StartSigning(ctx, sub.ID)
	if err != nil {
		t.Fatalf("start signing: %v", err)
	}
	return out
}

func (f *fixture) sign(t *testing.T, id int, userId int, role string, order int) *models.Submission {
	t.Helper()
	out, err := f.svc.Sign(userContext(userId, role), id, order, models.SignatureMethodAuth, "")
	if err != nil {
		t.Fatalf("sign order %d: %v", order, err)
	}
	return out
}

// signed returns a fully signed submission.
func (f *fixture) signed(t *testing.T) *models.Submission {
	t.Helper()
	sub := f.pending(t)
	f.sign(t, sub.ID, masterId, "MASTER", 1)
	return f.sign(t, sub.ID, chiefId, "CHIEF_OFFICER", 2)
}

func expectKind(t *testing.T, err error, kind string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := ErrorKind(err); got != kind {
		t.Fatalf("expected %s, got %s (%v)", kind, got, err)
	}
}

func setAuthenticated(ctx context.Context, v bool) context.Context {
	return utils.SetAuthenticatedInContext(ctx, v)
}

func setCompany(ctx context.Context, companyId string) context.Context {
	return utils.SetCompanyIdInContext(ctx, companyId)
}
