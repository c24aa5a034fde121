package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/reconcile"
	"github.com/shopspring/decimal"
)

// BatchRecord is one imported production batch with its link decision.
// Rows are append-only; ContentHash rejects a re-import of the same file.
type BatchRecord struct {
	ID             int                  `gorm:"primary_key" json:"id"`
	ImportRunId    string               `gorm:"size:36;index;not null" json:"import_run_id"`
	SourceFile     string               `gorm:"size:255;not null" json:"source_file"`
	SourceLine     int                  `gorm:"not null" json:"source_line"`
	ContentHash    string               `gorm:"size:16;uniqueIndex;not null" json:"content_hash"`
	BatchNumber    string               `gorm:"size:100;index;not null" json:"batch_number"`
	BatchTime      time.Time            `gorm:"index;not null" json:"batch_time"`
	ClientName     string               `gorm:"size:255;not null" json:"client_name"`
	FormulaCode    string               `gorm:"size:50;not null" json:"formula_code"`
	Cement         decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"cement"`
	Sand           decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"sand"`
	Gravel         decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"gravel"`
	Water          decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"water"`
	Additives      decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"additives"`
	TotalVolume    decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"total_volume"`
	Operator       string               `gorm:"size:100;not null" json:"operator"`
	RawRow         json.RawMessage      `gorm:"type:json" json:"raw_row"`
	LinkState      reconcile.LinkState  `gorm:"size:20;index;not null" json:"link_state"`
	LinkConfidence int                  `gorm:"not null;default:0" json:"link_confidence"`
	DeliveryId     *int                 `gorm:"index" json:"delivery_id"`
	Candidates     []BatchLinkCandidate `gorm:"foreignKey:BatchRecordId" json:"candidates"`
	CreatedAt      time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

// BatchLinkCandidate keeps a ranked runner-up for manual review.
type BatchLinkCandidate struct {
	ID            int `gorm:"primary_key" json:"id"`
	BatchRecordId int `gorm:"index;not null" json:"batch_record_id"`
	Rank          int `gorm:"column:candidate_rank;not null" json:"rank"`
	DeliveryId    int `gorm:"index;not null" json:"delivery_id"`
	Confidence    int `gorm:"not null" json:"confidence"`
	DateScore     int `gorm:"not null" json:"date_score"`
	ClientScore   int `gorm:"not null" json:"client_score"`
	VolumeScore   int `gorm:"not null" json:"volume_score"`
	FormulaScore  int `gorm:"not null" json:"formula_score"`
}

func newBatchRecord(batch reconcile.LinkedBatch) (*BatchRecord, error) {
	raw, err := json.Marshal(batch.Record.Raw.Fields)
	if err != nil {
		return nil, err
	}
	rec := batch.Record
	model := &BatchRecord{
		ImportRunId:    batch.ImportRunId,
		SourceFile:     batch.SourceFile,
		SourceLine:     rec.Raw.Line,
		ContentHash:    batch.ContentHash,
		BatchNumber:    rec.BatchNumber,
		BatchTime:      rec.BatchTime,
		ClientName:     rec.ClientName,
		FormulaCode:    rec.FormulaCode,
		Cement:         rec.Cement,
		Sand:           rec.Sand,
		Gravel:         rec.Gravel,
		Water:          rec.Water,
		Additives:      rec.Additives,
		TotalVolume:    rec.TotalVolume,
		Operator:       rec.Operator,
		RawRow:         raw,
		LinkState:      batch.Decision.State(),
		LinkConfidence: batch.Decision.Confidence(),
	}
	if id, ok := batch.Decision.DeliveryId(); ok {
		model.DeliveryId = &id
	}
	for i, c := range batch.Decision.Candidates() {
		model.Candidates = append(model.Candidates, BatchLinkCandidate{
			Rank:         i + 1,
			DeliveryId:   c.DeliveryId,
			Confidence:   c.Confidence,
			DateScore:    c.DateScore,
			ClientScore:  c.ClientScore,
			VolumeScore:  c.VolumeScore,
			FormulaScore: c.FormulaScore,
		})
	}
	return model, nil
}
