package config

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/commissions_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// TenantGuardPlugin scopes every query, row fetch, update and delete to the
// request's business_id whenever the model carries a business_id column.
//
// Raw SQL is not covered; those statements must filter on business_id
// themselves. Create is deliberately unguarded so seeding and cross-tenant
// provisioning keep working. Bypass is explicit via the SkipTenantScope or
// IsAdmin context flags.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", scopeToBusiness); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", scopeToBusiness); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", scopeToBusiness); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", scopeToBusiness)
}

func scopeToBusiness(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || tenantScopeBypassed(ctx) {
		return
	}
	businessId := tenantFromContext(ctx)
	if businessId == "" {
		return
	}

	if db.Statement.Schema == nil || !schemaHasBusinessId(db.Statement.Schema.Fields) {
		return
	}

	// An explicit tenant filter in the query wins; never stack a second one.
	if whereHasBusinessId(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "business_id"},
				Value:  businessId,
			},
		},
	})
}

func schemaHasBusinessId(fields []*schema.Field) bool {
	for _, f := range fields {
		if strings.EqualFold(f.DBName, "business_id") {
			return true
		}
	}
	return false
}

func tenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyBusinessId).(string); ok {
		return v
	}
	return ""
}

func tenantScopeBypassed(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasBusinessId(c clause.Clause) bool {
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasBusinessId(e) {
			return true
		}
	}
	return false
}

func exprHasBusinessId(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsBusinessId(v.Column)
	case clause.Neq:
		return colIsBusinessId(v.Column)
	case clause.Gt:
		return colIsBusinessId(v.Column)
	case clause.Gte:
		return colIsBusinessId(v.Column)
	case clause.Lt:
		return colIsBusinessId(v.Column)
	case clause.Lte:
		return colIsBusinessId(v.Column)
	case clause.IN:
		return colIsBusinessId(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasBusinessId(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasBusinessId(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// best-effort for raw fragments
		return strings.Contains(strings.ToLower(v.SQL), "business_id")
	default:
		return false
	}
}

func colIsBusinessId(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "business_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "business_id")
	default:
		return false
	}
}
