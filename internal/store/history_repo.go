package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"promptmaster-nano/internal/model"
)

type HistoryRepository interface {
	Append(ctx context.Context, rec *model.PromptRecord) error
	// List returns the newest records first. limit <= 0 means no limit.
	List(ctx context.Context, userID string, limit int) ([]model.PromptRecord, error)
	Get(ctx context.Context, userID, id string) (*model.PromptRecord, error)
	Delete(ctx context.Context, userID, id string) error
	Clear(ctx context.Context, userID string) (int64, error)
	// PurgeBefore removes records of every user older than cutoff (Unix ms).
	PurgeBefore(ctx context.Context, cutoff int64) (int64, error)
}

type historyRepo struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepo{db: db}
}

func (r *historyRepo) Append(ctx context.Context, rec *model.PromptRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *historyRepo) List(ctx context.Context, userID string, limit int) ([]model.PromptRecord, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	records := make([]model.PromptRecord, 0)
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *historyRepo) Get(ctx context.Context, userID, id string) (*model.PromptRecord, error) {
	var rec model.PromptRecord
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *historyRepo) Delete(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&model.PromptRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *historyRepo) Clear(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.PromptRecord{})
	return res.RowsAffected, res.Error
}

func (r *historyRepo) PurgeBefore(ctx context.Context, cutoff int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&model.PromptRecord{})
	return res.RowsAffected, res.Error
}
