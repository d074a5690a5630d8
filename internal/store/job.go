package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	// GetForUpdate reads the job and, on postgres, holds its row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error)
	// CompareAndUpdate applies updates only if the row still matches cond.
	// It returns ErrConflict when the row exists but no longer matches.
	CompareAndUpdate(ctx context.Context, id uuid.UUID, cond JobCondition, updates map[string]any) (*model.Job, error)
	Statistics(ctx context.Context) (model.JobStats, error)
}

// JobCondition is the expected current state of a job row. Zero fields are not checked.
type JobCondition struct {
	Statuses      []model.JobStatus
	ReassignCount *int
	OfferRound    *int
	AssignedProID *string
	Unassigned    bool
	Escalated     *bool
}

func (c JobCondition) apply(tx *gorm.DB) *gorm.DB {
	if len(c.Statuses) > 0 {
		tx = tx.Where("status IN ?", c.Statuses)
	}
	if c.ReassignCount != nil {
		tx = tx.Where("reassign_count = ?", *c.ReassignCount)
	}
	if c.OfferRound != nil {
		tx = tx.Where("offer_round = ?", *c.OfferRound)
	}
	if c.AssignedProID != nil {
		tx = tx.Where("assigned_pro_id = ?", *c.AssignedProID)
	}
	if c.Unassigned {
		tx = tx.Where("assigned_pro_id IS NULL")
	}
	if c.Escalated != nil {
		tx = tx.Where("escalated = ?", *c.Escalated)
	}
	return tx
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := s.getDB(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	return s.get(s.getDB(ctx), id)
}

func (s *JobStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	db := s.getDB(ctx)
	if isPostgres(db) {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return s.get(db, id)
}

func (s *JobStore) get(db *gorm.DB, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error) {
	var jobs model.JobList
	tx := s.getDB(ctx).Model(&jobs).Order("created_at")
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if err := tx.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) CompareAndUpdate(ctx context.Context, id uuid.UUID, cond JobCondition, updates map[string]any) (*model.Job, error) {
	db := s.getDB(ctx)

	result := cond.apply(db.Model(&model.Job{}).Where("id = ?", id)).Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("updating job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.get(db, id); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}

	return s.get(db, id)
}

func (s *JobStore) Statistics(ctx context.Context) (model.JobStats, error) {
	stats := model.JobStats{ByStatus: map[model.JobStatus]int64{}}

	var rows []struct {
		Status model.JobStatus
		Total  int64
	}
	db := s.getDB(ctx)
	if err := db.Model(&model.Job{}).Select("status, count(*) as total").Group("status").Scan(&rows).Error; err != nil {
		return stats, fmt.Errorf("counting jobs by status: %w", err)
	}
	for _, r := range rows {
		stats.ByStatus[r.Status] = r.Total
	}

	if err := db.Model(&model.Job{}).Where("escalated = ?", true).Count(&stats.Escalated).Error; err != nil {
		return stats, fmt.Errorf("counting escalated jobs: %w", err)
	}
	return stats, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
