package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicateBatch is returned by a Store when the content hash already exists.
var ErrDuplicateBatch = errors.New("batch already imported")

const importLockKey = "lock:batch-import"

// LinkedBatch is what gets persisted for one valid row.
type LinkedBatch struct {
	ImportRunId string
	SourceFile  string
	ContentHash string
	Record      BatchRecord
	Decision    LinkDecision
}

// Store is the delivery/batch store the engine reads from and appends to.
type Store interface {
	// FindDeliveriesByDate returns at most limit deliveries dated on day.
	FindDeliveriesByDate(ctx context.Context, day time.Time, limit int) ([]DeliveryRecord, error)
	// SaveLinkedBatch inserts the batch with its decision and returns its id.
	SaveLinkedBatch(ctx context.Context, batch LinkedBatch) (int, error)
	SaveImportRun(ctx context.Context, run *ImportRun) error
}

// ImportRequest is one uploaded file.
type ImportRequest struct {
	FileName   string
	Content    []byte
	ArchiveKey string
}

type Coordinator struct {
	store          Store
	validator      *RowValidator
	scorer         *Scorer
	thresholds     Thresholds
	candidateLimit int
	lockTTL        time.Duration
	notifier       ImportNotifier
	logger         *logrus.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

func NewCoordinator(store Store, settings config.ImportSettings, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	limit := settings.CandidateLimit
	if limit <= 0 {
		limit = config.DefaultImportSettings().CandidateLimit
	}
	return &Coordinator{
		store:          store,
		validator:      NewRowValidator(settings.Location).WithQuantityRanges(settings.QuantityRangeChecks),
		scorer:         NewScorer(NewNameMatcher(settings.NameMatcher)),
		thresholds:     Thresholds{AutoLink: settings.AutoLinkThreshold, Pending: settings.PendingThreshold},
		candidateLimit: limit,
		lockTTL:        settings.LockTTL,
		logger:         logger,
		tracer:         otel.Tracer("batchlink/reconcile"),
		now:            time.Now,
	}
}

// SetNotifier installs the hook told about every persisted run. nil disables it.
func (c *Coordinator) SetNotifier(n ImportNotifier) {
	c.notifier = n
}

// Import runs every row of the file through validation, scoring and
// classification, persists each valid row, then persists one ImportRun.
// Row failures are collected on the run; only invocation-level failures
// return an error, and then no run is persisted.
func (c *Coordinator) Import(ctx context.Context, req ImportRequest) (*ImportRun, error) {
	if len(bytes.TrimSpace(req.Content)) == 0 {
		return nil, ErrEmptyInput
	}

	ctx, span := c.tracer.Start(ctx, "reconcile.Import", trace.WithAttributes(
		attribute.String("import.source_file", req.FileName),
		attribute.Int("import.bytes", len(req.Content)),
	))
	defer span.End()

	parsed, err := ParseFile(req.FileName, req.Content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(parsed.Headers) == 0 {
		return nil, ErrNoHeader
	}

	release, err := utils.ObtainLock(ctx, importLockKey, c.lockTTL, "coordinator.go", "Import")
	if err != nil {
		if errors.Is(err, utils.ErrLockHeld) {
			return nil, ErrImportInProgress
		}
		return nil, fmt.Errorf("obtain import lock: %w", err)
	}
	defer release()

	run := c.newRun(ctx, req)
	run.SkippedLines = parsed.Skipped

	for i, row := range parsed.Rows {
		c.importRow(ctx, run, row, i+1)
	}

	run.FinishedAt = c.now()
	if err := c.store.SaveImportRun(ctx, run); err != nil {
		span.RecordError(err)
		config.LogError(c.logger, "coordinator.go", "Import", "SaveImportRun", run.ID, err)
		return nil, fmt.Errorf("save import run: %w", err)
	}

	if c.notifier != nil {
		// the run is already stored; a lost event is only logged
		if err := c.notifier.ImportFinished(ctx, run); err != nil {
			c.logger.WithFields(logrus.Fields{
				"import_run_id": run.ID,
				"field":         "ImportFinished",
			}).Warn("import event not published: " + err.Error())
		}
	}

	span.SetAttributes(
		attribute.Int("import.total_rows", run.TotalRows),
		attribute.Int("import.imported", run.Imported),
		attribute.Int("import.failed", run.Failed),
		attribute.Int("import.auto_linked", run.AutoLinked),
	)
	c.logger.WithFields(logrus.Fields{
		"import_run_id":  run.ID,
		"source_file":    run.SourceFile,
		"correlation_id": run.CorrelationId,
		"total_rows":     run.TotalRows,
		"imported":       run.Imported,
		"failed":         run.Failed,
		"auto_linked":    run.AutoLinked,
		"pending_link":   run.PendingLink,
		"skipped_lines":  run.SkippedLines,
	}).Info("batch import finished")

	return run, nil
}

func (c *Coordinator) newRun(ctx context.Context, req ImportRequest) *ImportRun {
	run := &ImportRun{
		ID:         uuid.NewString(),
		SourceFile: req.FileName,
		ArchiveKey: req.ArchiveKey,
		StartedAt:  c.now(),
		BatchIds:   []int{},
		Errors:     []RowError{},
	}
	if username, ok := utils.GetUsernameFromContext(ctx); ok {
		run.CreatedBy = username
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		run.CorrelationId = cid
	}
	return run
}

func (c *Coordinator) importRow(ctx context.Context, run *ImportRun, row RawRow, rowNumber int) {
	run.TotalRows++

	record, rowErrs := c.validator.Validate(row, rowNumber)
	if len(rowErrs) > 0 {
		c.failRow(ctx, run, rowErrs...)
		return
	}

	deliveries, err := c.store.FindDeliveriesByDate(ctx, record.BatchDate(), c.candidateLimit)
	if err != nil {
		config.LogError(c.logger, "coordinator.go", "importRow", "FindDeliveriesByDate", rowNumber, err)
		c.failRow(ctx, run, RowError{Row: rowNumber, Line: row.Line, Field: ColDateTime, Message: "could not load deliveries: " + err.Error()})
		return
	}

	var decision LinkDecision
	if len(deliveries) == 0 {
		decision = NoMatch(0, nil)
	} else {
		decision = Classify(c.scorer.ScoreAll(*record, deliveries), c.thresholds)
	}

	id, err := c.store.SaveLinkedBatch(ctx, LinkedBatch{
		ImportRunId: run.ID,
		SourceFile:  run.SourceFile,
		ContentHash: ContentHash(record.BatchNumber, record.BatchTime, run.SourceFile),
		Record:      *record,
		Decision:    decision,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateBatch) {
			c.failRow(ctx, run, RowError{Row: rowNumber, Line: row.Line, Field: ColBatchNumber, Message: fmt.Sprintf("batch %s already imported from %s", record.BatchNumber, run.SourceFile)})
			return
		}
		config.LogError(c.logger, "coordinator.go", "importRow", "SaveLinkedBatch", rowNumber, err)
		c.failRow(ctx, run, RowError{Row: rowNumber, Line: row.Line, Field: "", Message: "could not save batch: " + err.Error()})
		return
	}

	run.Imported++
	run.BatchIds = append(run.BatchIds, id)
	switch decision.State() {
	case LinkStateAutoLinked:
		run.AutoLinked++
	case LinkStatePending:
		run.PendingLink++
	}
}

func (c *Coordinator) failRow(ctx context.Context, run *ImportRun, errs ...RowError) {
	run.Failed++
	run.Errors = append(run.Errors, errs...)
	for _, e := range errs {
		c.logger.WithFields(logrus.Fields{
			"import_run_id": run.ID,
			"row":           e.Row,
			"line":          e.Line,
			"field":         e.Field,
		}).Warn(e.Message)
	}
	trace.SpanFromContext(ctx).AddEvent("row_failed", trace.WithAttributes(
		attribute.Int("row", errs[0].Row),
		attribute.Int("line", errs[0].Line),
		attribute.String("field", errs[0].Field),
	))
}

// ContentHash is the dedup key of a batch row: batch number, timestamp and source file.
func ContentHash(batchNumber string, batchTime time.Time, sourceFile string) string {
	key := strings.Join([]string{
		strings.TrimSpace(batchNumber),
		batchTime.UTC().Format(time.RFC3339),
		strings.TrimSpace(sourceFile),
	}, "|")
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}
