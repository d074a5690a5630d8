package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptend/dispatch/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Pro interface {
	Upsert(ctx context.Context, pro model.Pro) (*model.Pro, error)
	Get(ctx context.Context, id string) (*model.Pro, error)
	// ListOnline returns the pros currently online and allowed to take jobs.
	ListOnline(ctx context.Context) (model.ProList, error)
	RecordNoShow(ctx context.Context, id string, at time.Time) error
}

type ProStore struct {
	db *gorm.DB
}

var _ Pro = (*ProStore)(nil)

func NewProStore(db *gorm.DB) Pro {
	return &ProStore{db: db}
}

func (s *ProStore) Upsert(ctx context.Context, pro model.Pro) (*model.Pro, error) {
	err := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "service_types", "lat", "lng", "rating", "available", "online", "can_accept_jobs", "updated_at",
		}),
	}).Create(&pro).Error
	if err != nil {
		return nil, fmt.Errorf("upserting pro: %w", err)
	}
	return s.Get(ctx, pro.ID)
}

func (s *ProStore) Get(ctx context.Context, id string) (*model.Pro, error) {
	var pro model.Pro
	if err := s.getDB(ctx).First(&pro, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying pro: %w", err)
	}
	return &pro, nil
}

func (s *ProStore) ListOnline(ctx context.Context) (model.ProList, error) {
	var pros model.ProList
	err := s.getDB(ctx).
		Where("online = ?", true).
		Where("can_accept_jobs = ?", true).
		Order("id").
		Find(&pros).Error
	if err != nil {
		return nil, fmt.Errorf("listing online pros: %w", err)
	}
	return pros, nil
}

func (s *ProStore) RecordNoShow(ctx context.Context, id string, at time.Time) error {
	result := s.getDB(ctx).Model(&model.Pro{}).Where("id = ?", id).Updates(map[string]any{
		"no_show_count":   gorm.Expr("no_show_count + 1"),
		"last_no_show_at": at,
	})
	if result.Error != nil {
		return fmt.Errorf("recording no-show: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ProStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
