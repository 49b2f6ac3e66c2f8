package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/compliance_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tenantColumn = "company_id"

// TenantGuardPlugin scopes queries, updates and deletes to the request's company_id
// when the model has a company_id column. A vessel operator's session must never read
// or sign another company's submissions.
//
// NOTE:
// - Raw SQL is not scoped. Those queries must filter company_id themselves.
// - Admin/internal bypass is explicit via context flags.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	registrations := []struct {
		register func(string, func(*gorm.DB)) error
		name     string
	}{
		{cb.Query().Before("gorm:query").Register, "tenant_guard:query"},
		{cb.Row().Before("gorm:row").Register, "tenant_guard:row"},
		{cb.Update().Before("gorm:update").Register, "tenant_guard:update"},
		{cb.Delete().Before("gorm:delete").Register, "tenant_guard:delete"},
	}
	for _, r := range registrations {
		if err := r.register(r.name, tenantGuardCallback); err != nil {
			return err
		}
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if shouldBypassTenantScope(ctx) {
		return
	}
	companyID, _ := appctx.GetString(ctx, appctx.ContextKeyCompanyId)
	if companyID == "" {
		return
	}
	if db.Statement.Schema.LookUpField(tenantColumn) == nil {
		return
	}
	// Don't duplicate an explicit tenant filter.
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok {
		for _, e := range where.Exprs {
			if exprMentionsTenant(e) {
				return
			}
		}
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn},
				Value:  companyID,
			},
		},
	})
}

func shouldBypassTenantScope(ctx context.Context) bool {
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope); ok && v {
		return true
	}
	return false
}

func exprMentionsTenant(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return isTenantColumn(v.Column)
	case clause.IN:
		return isTenantColumn(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprMentionsTenant(x) {
				return true
			}
		}
	case clause.Expr:
		// Best-effort for raw expressions such as Where("company_id = ?", id).
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	}
	return false
}

func isTenantColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	}
	return false
}
