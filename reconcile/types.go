// Package reconcile links production-line batch exports to recorded deliveries.
//
// The flow for one upload is parse -> validate -> retrieve candidates -> score
// -> classify -> persist. Everything except retrieval and persistence is pure;
// those two go through the injected Store.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// CSV columns of the production controller export.
const (
	ColBatchNumber = "BatchNumber"
	ColDateTime    = "DateTime"
	ColClient      = "Client"
	ColFormula     = "Formula"
	ColCement      = "Cement"
	ColSand        = "Sand"
	ColGravel      = "Gravel"
	ColWater       = "Water"
	ColAdditives   = "Additives"
	ColTotalVolume = "TotalVolume"
	ColOperator    = "Operator"
)

// RequiredColumns in the order errors are reported.
var RequiredColumns = []string{
	ColBatchNumber, ColDateTime, ColClient, ColFormula,
	ColCement, ColSand, ColGravel, ColWater, ColAdditives, ColTotalVolume,
	ColOperator,
}

// NumericColumns must parse as finite numbers.
var NumericColumns = []string{
	ColCement, ColSand, ColGravel, ColWater, ColAdditives, ColTotalVolume,
}

// RawRow is one data line zipped against the header.
type RawRow struct {
	Line   int               `json:"line"`
	Fields map[string]string `json:"fields"`
	// header order of the source file, used for case-insensitive lookups
	headers []string
}

// BatchRecord is a validated production batch.
type BatchRecord struct {
	RowNumber   int             `json:"row_number"`
	BatchNumber string          `json:"batch_number" csv:"BatchNumber" validate:"required"`
	BatchTime   time.Time       `json:"batch_time" csv:"DateTime"`
	ClientName  string          `json:"client_name" csv:"Client" validate:"required"`
	FormulaCode string          `json:"formula_code" csv:"Formula" validate:"required"`
	Cement      decimal.Decimal `json:"cement" csv:"Cement"`
	Sand        decimal.Decimal `json:"sand" csv:"Sand"`
	Gravel      decimal.Decimal `json:"gravel" csv:"Gravel"`
	Water       decimal.Decimal `json:"water" csv:"Water"`
	Additives   decimal.Decimal `json:"additives" csv:"Additives"`
	TotalVolume decimal.Decimal `json:"total_volume" csv:"TotalVolume"`
	Operator    string          `json:"operator" csv:"Operator" validate:"required"`
	Raw         RawRow          `json:"raw"`
}

// BatchDate is the calendar day of the batch in its own location, which the
// row validator sets to the import time zone.
func (b BatchRecord) BatchDate() time.Time {
	y, m, d := b.BatchTime.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, b.BatchTime.Location())
}

// DeliveryRecord is a same-day delivery read from the store. Never mutated here.
type DeliveryRecord struct {
	ID          int             `json:"id"`
	ClientName  string          `json:"client_name"`
	FormulaCode string          `json:"formula_code"`
	Volume      decimal.Decimal `json:"volume"`
	// Time is the scheduled or actual time of day ("15:04" or "15:04:05"), empty when unknown.
	Time string `json:"time,omitempty"`
}

// LinkCandidate is the score of one batch/delivery pair.
type LinkCandidate struct {
	DeliveryId   int `json:"delivery_id"`
	Confidence   int `json:"confidence"`
	DateScore    int `json:"date_score"`
	ClientScore  int `json:"client_score"`
	VolumeScore  int `json:"volume_score"`
	FormulaScore int `json:"formula_score"`
}

// RowError is a recoverable, row-scoped failure. Row counts parsed data
// rows; Line is the physical line (or sheet row) in the source file.
type RowError struct {
	Row     int    `json:"row"`
	Line    int    `json:"line,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportRun summarizes one invocation. Written once, after every row is processed.
type ImportRun struct {
	ID            string     `json:"import_run_id"`
	SourceFile    string     `json:"source_file"`
	ArchiveKey    string     `json:"archive_key,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CorrelationId string     `json:"correlation_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
	TotalRows     int        `json:"total_rows"`
	Imported      int        `json:"imported"`
	Failed        int        `json:"failed"`
	AutoLinked    int        `json:"auto_linked"`
	PendingLink   int        `json:"pending_link"`
	SkippedLines  int        `json:"skipped_lines"`
	BatchIds      []int      `json:"batch_ids"`
	Errors        []RowError `json:"errors"`
}
