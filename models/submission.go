package models

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Submission struct {
	ID               int               `gorm:"primary_key" json:"id"`
	CompanyId        string            `gorm:"size:64;not null;index;uniqueIndex:idx_submission_number,priority:1" json:"company_id"`
	SubmissionNumber string            `gorm:"size:100;not null;uniqueIndex:idx_submission_number,priority:2" json:"submission_number"`
	ScopeAbbr        string            `gorm:"size:20;not null" json:"scope_abbr"`
	TemplateId       int               `gorm:"not null;index:idx_submission_template,priority:1" json:"template_id"`
	TemplateVersion  int               `gorm:"not null;index:idx_submission_template,priority:2" json:"template_version"`
	TemplateCode     string            `gorm:"size:50;not null" json:"template_code"`
	FormData         datatypes.JSONMap `json:"form_data"`
	Status           SubmissionStatus  `gorm:"size:30;not null;index" json:"status"`
	IsLocked         bool              `gorm:"not null" json:"is_locked"`
	ContentHash      string            `gorm:"size:80;not null" json:"content_hash"`
	RejectedHash     *string           `gorm:"size:80" json:"rejected_hash,omitempty"`
	RowVersion       int               `gorm:"not null" json:"row_version"`
	SigningRound     int               `gorm:"not null" json:"signing_round"`
	CreatedBy        int               `gorm:"not null;index" json:"created_by"`
	CreatedByName    string            `gorm:"size:100" json:"created_by_name"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	SignedAt         *time.Time        `json:"signed_at,omitempty"`
	ArchivedAt       *time.Time        `json:"archived_at,omitempty"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// Data returns form data as a plain map; never nil.
func (s Submission) Data() map[string]interface{} {
	if s.FormData == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}(s.FormData)
}

// VerifyContentHash recomputes the digest of the stored form data and compares it to ContentHash.
func (s Submission) VerifyContentHash() (bool, string, error) {
	digest, err := utils.Digest(s.Data())
	if err != nil {
		return false, "", err
	}
	return digest == s.ContentHash, digest, nil
}

var scopeAbbrPattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// NormalizeScopeAbbr upper-cases a vessel/scope abbreviation and rejects characters that
// would break submission number parsing.
func NormalizeScopeAbbr(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !scopeAbbrPattern.MatchString(s) {
		return "", fmt.Errorf("invalid scope abbreviation %q", raw)
	}
	return s, nil
}

// FormatSubmissionNumber renders {template_code}-{scope_abbr}-{year}-{seq:04d}.
func FormatSubmissionNumber(templateCode string, scopeAbbr string, year int, seq int) string {
	return fmt.Sprintf("%s-%s-%d-%04d", templateCode, scopeAbbr, year, seq)
}

// ParseSubmissionNumber splits a submission number from the right, so template codes may contain '-'.
func ParseSubmissionNumber(number string) (templateCode string, scopeAbbr string, year int, seq int, err error) {
	parts := strings.Split(number, "-")
	if len(parts) < 4 {
		return "", "", 0, 0, fmt.Errorf("invalid submission number %q", number)
	}
	n := len(parts)
	seqPart, yearPart := parts[n-1], parts[n-2]
	if len(seqPart) < 4 || len(yearPart) != 4 {
		return "", "", 0, 0, fmt.Errorf("invalid submission number %q", number)
	}
	if seq, err = strconv.Atoi(seqPart); err != nil || seq < 1 {
		return "", "", 0, 0, fmt.Errorf("invalid submission number %q", number)
	}
	if year, err = strconv.Atoi(yearPart); err != nil {
		return "", "", 0, 0, fmt.Errorf("invalid submission number %q", number)
	}
	scopeAbbr = parts[n-3]
	templateCode = strings.Join(parts[:n-3], "-")
	if scopeAbbr == "" || templateCode == "" {
		return "", "", 0, 0, fmt.Errorf("invalid submission number %q", number)
	}
	return templateCode, scopeAbbr, year, seq, nil
}

func GetSubmission(ctx context.Context, db *gorm.DB, id int) (*Submission, error) {
	var s Submission
	if err := db.WithContext(ctx).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &s, nil
}

// LockSubmission re-reads the row inside tx with SELECT ... FOR UPDATE.
func LockSubmission(tx *gorm.DB, id int) (*Submission, error) {
	var s Submission
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &s, nil
}

// CompareAndSwapSubmission applies changes only if the row still has the status and
// row_version the caller read. It bumps row_version and reports whether the row changed.
func CompareAndSwapSubmission(tx *gorm.DB, s *Submission, changes map[string]interface{}) (bool, error) {
	changes["row_version"] = gorm.Expr("row_version + 1")
	res := tx.Model(&Submission{}).
		Where("id = ? AND status = ? AND row_version = ?", s.ID, s.Status, s.RowVersion).
		Updates(changes)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type SubmissionFilter struct {
	Status     *SubmissionStatus
	TemplateId *int
	Year       *int
	// AfterId is the keyset position; only ids greater than it are returned.
	AfterId int
	Limit   int
}

// ListSubmissions is used by the audit tooling; callers must already carry a company scope.
func ListSubmissions(ctx context.Context, db *gorm.DB, filter SubmissionFilter) ([]Submission, error) {
	q := db.WithContext(ctx).Model(&Submission{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.TemplateId != nil {
		q = q.Where("template_id = ?", *filter.TemplateId)
	}
	if filter.Year != nil {
		start := time.Date(*filter.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		q = q.Where("created_at >= ? AND created_at < ?", start, start.AddDate(1, 0, 0))
	}
	if filter.AfterId > 0 {
		q = q.Where("id > ?", filter.AfterId)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []Submission
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
