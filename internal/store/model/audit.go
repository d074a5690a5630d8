package model

import (
	"time"

	"github.com/google/uuid"
)

type ClaimOutcome string

const (
	ClaimOutcomeWon     ClaimOutcome = "won"
	ClaimOutcomeLost    ClaimOutcome = "lost"
	ClaimOutcomeExpired ClaimOutcome = "expired"
	// ClaimOutcomeDeclined is a pro passing on the offer. It counts as the pro's answer for the round.
	ClaimOutcomeDeclined ClaimOutcome = "declined"
)

// ClaimAttempt is write-once. A pro gets at most one attempt per job and offer round.
type ClaimAttempt struct {
	ID          uint         `json:"-" gorm:"primaryKey;autoIncrement"`
	JobID       uuid.UUID    `json:"jobId" gorm:"not null;uniqueIndex:claim_attempts_job_pro_round"`
	ProID       string       `json:"proId" gorm:"not null;uniqueIndex:claim_attempts_job_pro_round"`
	Round       int          `json:"round" gorm:"not null;uniqueIndex:claim_attempts_job_pro_round"`
	Outcome     ClaimOutcome `json:"outcome" gorm:"not null"`
	AttemptedAt time.Time    `json:"attemptedAt" gorm:"not null"`
}

// Offer records that a pro was sent the job in a given round.
type Offer struct {
	ID        uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	JobID     uuid.UUID `json:"jobId" gorm:"not null;index"`
	ProID     string    `json:"proId" gorm:"not null"`
	Round     int       `json:"round" gorm:"not null"`
	Urgent    bool      `json:"urgent"`
	OfferedAt time.Time `json:"offeredAt" gorm:"not null"`
	Deadline  time.Time `json:"deadline" gorm:"not null"`
}

type DelayReport struct {
	ID         uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	JobID      uuid.UUID `json:"jobId" gorm:"not null;index"`
	ProID      string    `json:"proId" gorm:"not null"`
	Reason     string    `json:"reason"`
	ReportedAt time.Time `json:"reportedAt" gorm:"not null"`
}

type TimelineEvent struct {
	ID        uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	JobID     uuid.UUID `json:"jobId" gorm:"not null;index"`
	Kind      string    `json:"kind" gorm:"not null"`
	ProID     *string   `json:"proId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (TimelineEvent) TableName() string {
	return "job_timeline_events"
}
