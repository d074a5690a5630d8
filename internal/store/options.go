package store

import (
	"time"

	"github.com/uptend/dispatch/internal/store/model"
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByStatus(statuses ...model.JobStatus) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return qf
}

// OfferDeadlineBefore keeps jobs whose offer window closed before t.
func (qf *JobQueryFilter) OfferDeadlineBefore(t time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("offer_deadline IS NOT NULL AND offer_deadline < ?", t)
	})
	return qf
}

func (qf *JobQueryFilter) NoShowDeadlineBefore(t time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("no_show_deadline IS NOT NULL AND no_show_deadline < ?", t)
	})
	return qf
}

func (qf *JobQueryFilter) ByEscalated(escalated bool) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("escalated = ?", escalated)
	})
	return qf
}
