package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/reconcile"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"gorm.io/gorm"
)

// BatchStore is the MySQL-backed reconcile.Store.
type BatchStore struct {
	db *gorm.DB
}

var _ reconcile.Store = (*BatchStore)(nil)

func NewBatchStore(db *gorm.DB) *BatchStore {
	return &BatchStore{db: db}
}

func (s *BatchStore) FindDeliveriesByDate(ctx context.Context, day time.Time, limit int) ([]reconcile.DeliveryRecord, error) {
	var deliveries []Delivery
	err := s.db.WithContext(ctx).
		Where("delivery_date = ?", day.Format("2006-01-02")).
		Order("id").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	records := make([]reconcile.DeliveryRecord, 0, len(deliveries))
	for _, d := range deliveries {
		records = append(records, d.toRecord())
	}
	return records, nil
}

func (s *BatchStore) SaveLinkedBatch(ctx context.Context, batch reconcile.LinkedBatch) (int, error) {
	model, err := newBatchRecord(batch)
	if err != nil {
		return 0, err
	}
	// batch row and its candidates land together or not at all
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, reconcile.ErrDuplicateBatch
	}
	if err != nil {
		return 0, err
	}
	return model.ID, nil
}

func (s *BatchStore) SaveImportRun(ctx context.Context, run *reconcile.ImportRun) error {
	model, err := newImportRun(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
}

func (s *BatchStore) GetImportRun(ctx context.Context, id string) (*reconcile.ImportRun, error) {
	var run ImportRun
	err := s.db.WithContext(ctx).
		Preload("Errors", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Where("id = ?", id).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return run.ToSummary()
}

// GetReviewBatches lists pending and no_match batches in [from, to] with their candidates.
func (s *BatchStore) GetReviewBatches(ctx context.Context, from, to time.Time) ([]*BatchRecord, error) {
	var results []*BatchRecord
	err := s.db.WithContext(ctx).
		Preload("Candidates", func(db *gorm.DB) *gorm.DB { return db.Order("candidate_rank") }).
		Where("link_state IN ?", []reconcile.LinkState{reconcile.LinkStatePending, reconcile.LinkStateNoMatch}).
		Where("batch_time >= ? AND batch_time < ?", from, to.AddDate(0, 0, 1)).
		Order("batch_time, id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
