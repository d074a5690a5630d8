package store

import (
	"context"

	"github.com/uptend/dispatch/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Pro() Pro
	Audit() Audit
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db    *gorm.DB
	job   Job
	pro   Pro
	audit Audit
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		job:   NewJobStore(db),
		pro:   NewProStore(db),
		audit: NewAuditStore(db),
		db:    db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Pro() Pro {
	return s.pro
}

func (s *DataStore) Audit() Audit {
	return s.audit
}

// InitialMigration creates the schema from the models. Postgres deployments use the
// versioned migrations in pkg/migrations instead.
func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(
		&model.Job{},
		&model.Pro{},
		&model.ClaimAttempt{},
		&model.Offer{},
		&model.DelayReport{},
		&model.TimelineEvent{},
	)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
