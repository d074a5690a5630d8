package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusCreated    JobStatus = "created"
	JobStatusOffered    JobStatus = "offered"
	JobStatusAccepted   JobStatus = "accepted"
	JobStatusEnRoute    JobStatus = "en_route"
	JobStatusCheckedIn  JobStatus = "checked_in"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusNoShow     JobStatus = "no_show"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Claimable reports whether a claim can move the job to accepted.
func (s JobStatus) Claimable() bool {
	return s == JobStatusOffered || s == JobStatusNoShow
}

// AwaitingCheckIn reports whether the assigned pro still has to check in.
func (s JobStatus) AwaitingCheckIn() bool {
	return s == JobStatusAccepted || s == JobStatusEnRoute
}

// Holding reports whether a job in this status is owned by its assigned pro.
func (s JobStatus) Holding() bool {
	switch s {
	case JobStatusAccepted, JobStatusEnRoute, JobStatusCheckedIn, JobStatusInProgress:
		return true
	default:
		return false
	}
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

type Job struct {
	ID            uuid.UUID  `json:"id" gorm:"primaryKey"`
	ServiceType   string     `json:"serviceType" gorm:"not null"`
	Status        JobStatus  `json:"status" gorm:"not null;index"`
	AssignedProID *string    `json:"assignedProId,omitempty"`
	Lat           float64    `json:"lat"`
	Lng           float64    `json:"lng"`
	OfferDeadline *time.Time `json:"offerDeadline,omitempty"`
	// NoShowDeadline never moves once set for an acceptance cycle.
	NoShowDeadline *time.Time `json:"noShowDeadline,omitempty"`
	// Urgent is set when the job goes through a no-show and never cleared.
	Urgent        bool `json:"urgent"`
	ReassignCount int  `json:"reassignCount" gorm:"not null;default:0"`
	// OfferRound numbers every offer of the job and never goes back, even when an escalated job is re-dispatched.
	OfferRound int `json:"offerRound" gorm:"not null;default:0"`

	AcceptedAt           *time.Time `json:"acceptedAt,omitempty"`
	OriginalProID        *string    `json:"originalProId,omitempty"`
	NoShowAt             *time.Time `json:"noShowAt,omitempty"`
	CheckedInAt          *time.Time `json:"checkedInAt,omitempty"`
	CheckInUnverified    bool       `json:"checkInUnverified"`
	CheckInReason        string     `json:"checkInReason,omitempty"`
	CheckInDistanceMiles *float64   `json:"checkInDistanceMiles,omitempty"`

	Escalated        bool       `json:"escalated"`
	EscalatedAt      *time.Time `json:"escalatedAt,omitempty"`
	EscalationReason string     `json:"escalationReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type JobList []Job

type JobStats struct {
	ByStatus  map[JobStatus]int64
	Escalated int64
}

func (j Job) String() string {
	v, _ := json.Marshal(j)
	return string(v)
}

// AssignedTo reports whether proID currently holds the job.
func (j Job) AssignedTo(proID string) bool {
	return j.AssignedProID != nil && *j.AssignedProID == proID
}

func NewJobFromID(id uuid.UUID) *Job {
	return &Job{ID: id}
}
