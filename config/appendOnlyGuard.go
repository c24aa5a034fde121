package config

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/batchlink_backend/appctx"
	"gorm.io/gorm"
)

var ErrAppendOnly = errors.New("table is append-only")

// AppendOnlyTables are never updated or deleted by this service. Deliveries
// belong to the dispatch side and are only read here.
var AppendOnlyTables = []string{
	"batch_records", "batch_link_candidates",
	"import_runs", "import_run_errors",
	"deliveries",
}

// AppendOnlyGuardPlugin fails Update and Delete statements on the guarded tables.
//
// NOTE:
// - Raw/Exec SQL is not checked.
// - Maintenance bypass is explicit via appctx.ContextKeyAllowMutation.
type AppendOnlyGuardPlugin struct {
	tables map[string]bool
}

func NewAppendOnlyGuardPlugin(tables ...string) *AppendOnlyGuardPlugin {
	p := &AppendOnlyGuardPlugin{tables: make(map[string]bool, len(tables))}
	for _, t := range tables {
		p.tables[t] = true
	}
	return p
}

func (p *AppendOnlyGuardPlugin) Name() string { return "append_only_guard" }

func (p *AppendOnlyGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("append_only_guard:update", p.guard); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("append_only_guard:delete", p.guard)
}

func (p *AppendOnlyGuardPlugin) guard(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	if !p.tables[db.Statement.Table] {
		return
	}
	if mutationAllowed(db.Statement.Context) {
		return
	}
	_ = db.AddError(fmt.Errorf("%w: %s", ErrAppendOnly, db.Statement.Table))
}

func mutationAllowed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, ok := ctx.Value(appctx.ContextKeyAllowMutation).(bool)
	return ok && v
}
