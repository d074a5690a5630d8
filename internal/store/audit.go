package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/store/model"
	"gorm.io/gorm"
)

// Audit is the append-only dispatch log of a job: offers, claim attempts, delay reports and timeline.
type Audit interface {
	CreateClaimAttempt(ctx context.Context, attempt model.ClaimAttempt) error
	GetClaimAttempt(ctx context.Context, jobID uuid.UUID, proID string, round int) (*model.ClaimAttempt, error)
	ListClaimAttempts(ctx context.Context, jobID uuid.UUID) ([]model.ClaimAttempt, error)

	CreateOffers(ctx context.Context, offers []model.Offer) error
	ListOffers(ctx context.Context, jobID uuid.UUID, round *int) ([]model.Offer, error)

	CreateDelayReport(ctx context.Context, report model.DelayReport) (*model.DelayReport, error)
	ListDelayReports(ctx context.Context, jobID uuid.UUID) ([]model.DelayReport, error)
	// HasDelayReport reports whether proID filed a delay for the job at or after since.
	HasDelayReport(ctx context.Context, jobID uuid.UUID, proID string, since time.Time) (bool, error)

	AppendTimeline(ctx context.Context, event model.TimelineEvent) error
	ListTimeline(ctx context.Context, jobID uuid.UUID) ([]model.TimelineEvent, error)
}

type AuditStore struct {
	db *gorm.DB
}

var _ Audit = (*AuditStore)(nil)

func NewAuditStore(db *gorm.DB) Audit {
	return &AuditStore{db: db}
}

func (s *AuditStore) CreateClaimAttempt(ctx context.Context, attempt model.ClaimAttempt) error {
	if err := s.getDB(ctx).Create(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("creating claim attempt: %w", err)
	}
	return nil
}

func (s *AuditStore) GetClaimAttempt(ctx context.Context, jobID uuid.UUID, proID string, round int) (*model.ClaimAttempt, error) {
	var attempt model.ClaimAttempt
	err := s.getDB(ctx).
		Where("job_id = ? AND pro_id = ? AND round = ?", jobID, proID, round).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying claim attempt: %w", err)
	}
	return &attempt, nil
}

func (s *AuditStore) ListClaimAttempts(ctx context.Context, jobID uuid.UUID) ([]model.ClaimAttempt, error) {
	var attempts []model.ClaimAttempt
	if err := s.getDB(ctx).Where("job_id = ?", jobID).Order("attempted_at, id").Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("listing claim attempts: %w", err)
	}
	return attempts, nil
}

func (s *AuditStore) CreateOffers(ctx context.Context, offers []model.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	if err := s.getDB(ctx).Create(&offers).Error; err != nil {
		return fmt.Errorf("creating offers: %w", err)
	}
	return nil
}

func (s *AuditStore) ListOffers(ctx context.Context, jobID uuid.UUID, round *int) ([]model.Offer, error) {
	var offers []model.Offer
	tx := s.getDB(ctx).Where("job_id = ?", jobID)
	if round != nil {
		tx = tx.Where("round = ?", *round)
	}
	if err := tx.Order("offered_at, id").Find(&offers).Error; err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	return offers, nil
}

func (s *AuditStore) CreateDelayReport(ctx context.Context, report model.DelayReport) (*model.DelayReport, error) {
	if err := s.getDB(ctx).Create(&report).Error; err != nil {
		return nil, fmt.Errorf("creating delay report: %w", err)
	}
	return &report, nil
}

func (s *AuditStore) ListDelayReports(ctx context.Context, jobID uuid.UUID) ([]model.DelayReport, error) {
	var reports []model.DelayReport
	if err := s.getDB(ctx).Where("job_id = ?", jobID).Order("reported_at, id").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing delay reports: %w", err)
	}
	return reports, nil
}

func (s *AuditStore) HasDelayReport(ctx context.Context, jobID uuid.UUID, proID string, since time.Time) (bool, error) {
	var count int64
	err := s.getDB(ctx).Model(&model.DelayReport{}).
		Where("job_id = ? AND pro_id = ? AND reported_at >= ?", jobID, proID, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting delay reports: %w", err)
	}
	return count > 0, nil
}

func (s *AuditStore) AppendTimeline(ctx context.Context, event model.TimelineEvent) error {
	if err := s.getDB(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("appending timeline event: %w", err)
	}
	return nil
}

func (s *AuditStore) ListTimeline(ctx context.Context, jobID uuid.UUID) ([]model.TimelineEvent, error) {
	var events []model.TimelineEvent
	if err := s.getDB(ctx).Where("job_id = ?", jobID).Order("created_at, id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing timeline: %w", err)
	}
	return events, nil
}

func (s *AuditStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
