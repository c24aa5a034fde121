package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/reconcile"
)

// ImportRun is the audit record of one upload. Inserted once, never updated.
type ImportRun struct {
	ID            string           `gorm:"primary_key;size:36" json:"id"`
	SourceFile    string           `gorm:"size:255;not null" json:"source_file"`
	ArchiveKey    *string          `gorm:"size:512" json:"archive_key"`
	CreatedBy     *string          `gorm:"size:100" json:"created_by"`
	CorrelationId string           `gorm:"size:64;index" json:"correlation_id"`
	TotalRows     int              `gorm:"not null;default:0" json:"total_rows"`
	Imported      int              `gorm:"not null;default:0" json:"imported"`
	Failed        int              `gorm:"not null;default:0" json:"failed"`
	AutoLinked    int              `gorm:"not null;default:0" json:"auto_linked"`
	PendingLink   int              `gorm:"not null;default:0" json:"pending_link"`
	SkippedLines  int              `gorm:"not null;default:0" json:"skipped_lines"`
	BatchIds      json.RawMessage  `gorm:"type:json" json:"batch_ids"`
	Errors        []ImportRunError `gorm:"foreignKey:ImportRunId" json:"errors"`
	StartedAt     time.Time        `gorm:"not null" json:"started_at"`
	FinishedAt    time.Time        `gorm:"not null" json:"finished_at"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type ImportRunError struct {
	ID          int    `gorm:"primary_key" json:"id"`
	ImportRunId string `gorm:"size:36;index;not null" json:"import_run_id"`
	Seq         int    `gorm:"not null" json:"seq"`
	Row         int    `gorm:"not null" json:"row"`
	Line        int    `gorm:"not null;default:0" json:"line"`
	Field       string `gorm:"size:50" json:"field"`
	Message     string `gorm:"type:text" json:"message"`
}

func newImportRun(run *reconcile.ImportRun) (*ImportRun, error) {
	ids, err := json.Marshal(run.BatchIds)
	if err != nil {
		return nil, err
	}
	model := &ImportRun{
		ID:            run.ID,
		SourceFile:    run.SourceFile,
		CorrelationId: run.CorrelationId,
		TotalRows:     run.TotalRows,
		Imported:      run.Imported,
		Failed:        run.Failed,
		AutoLinked:    run.AutoLinked,
		PendingLink:   run.PendingLink,
		SkippedLines:  run.SkippedLines,
		BatchIds:      ids,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
	if run.ArchiveKey != "" {
		model.ArchiveKey = &run.ArchiveKey
	}
	if run.CreatedBy != "" {
		model.CreatedBy = &run.CreatedBy
	}
	for i, e := range run.Errors {
		model.Errors = append(model.Errors, ImportRunError{
			Seq:     i + 1,
			Row:     e.Row,
			Line:    e.Line,
			Field:   e.Field,
			Message: e.Message,
		})
	}
	return model, nil
}

// ToSummary converts the stored run back to the engine's view.
func (m *ImportRun) ToSummary() (*reconcile.ImportRun, error) {
	run := &reconcile.ImportRun{
		ID:            m.ID,
		SourceFile:    m.SourceFile,
		CorrelationId: m.CorrelationId,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
		TotalRows:     m.TotalRows,
		Imported:      m.Imported,
		Failed:        m.Failed,
		AutoLinked:    m.AutoLinked,
		PendingLink:   m.PendingLink,
		SkippedLines:  m.SkippedLines,
		BatchIds:      []int{},
		Errors:        make([]reconcile.RowError, 0, len(m.Errors)),
	}
	if m.ArchiveKey != nil {
		run.ArchiveKey = *m.ArchiveKey
	}
	if m.CreatedBy != nil {
		run.CreatedBy = *m.CreatedBy
	}
	if len(m.BatchIds) > 0 {
		if err := json.Unmarshal(m.BatchIds, &run.BatchIds); err != nil {
			return nil, err
		}
	}
	for _, e := range m.Errors {
		run.Errors = append(run.Errors, reconcile.RowError{Row: e.Row, Line: e.Line, Field: e.Field, Message: e.Message})
	}
	return run, nil
}
