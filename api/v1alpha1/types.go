// Package v1alpha1 holds the request and response bodies of the dispatch API.
package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type Location struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// JobCreate is sent by the booking flow. With Dispatch set the job is offered right away.
type JobCreate struct {
	Id          *uuid.UUID `json:"id,omitempty"`
	ServiceType string     `json:"serviceType" validate:"required,service_type"`
	Location    Location   `json:"location"`
	Dispatch    bool       `json:"dispatch"`
}

// ProAction identifies the pro acting on a job: claim, en route, start and complete.
type ProAction struct {
	ProId string `json:"proId" validate:"required,pro_id"`
}

type CheckIn struct {
	ProId        string    `json:"proId" validate:"required,pro_id"`
	Location     *Location `json:"location,omitempty"`
	ManualReason string    `json:"manualReason,omitempty" validate:"max=500"`
}

type DelayReport struct {
	ProId  string `json:"proId" validate:"required,pro_id"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type JobCancel struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ProUpdate struct {
	Name          string   `json:"name" validate:"max=200"`
	ServiceTypes  []string `json:"serviceTypes" validate:"dive,service_type"`
	Location      Location `json:"location"`
	Rating        float64  `json:"rating" validate:"gte=0,lte=5"`
	Available     bool     `json:"available"`
	Online        bool     `json:"online"`
	CanAcceptJobs bool     `json:"canAcceptJobs"`
}

type Job struct {
	Id                   uuid.UUID  `json:"id"`
	ServiceType          string     `json:"serviceType"`
	Status               string     `json:"status"`
	Location             Location   `json:"location"`
	AssignedProId        *string    `json:"assignedProId,omitempty"`
	OfferDeadline        *time.Time `json:"offerDeadline,omitempty"`
	NoShowDeadline       *time.Time `json:"noShowDeadline,omitempty"`
	Urgent               bool       `json:"urgent"`
	ReassignCount        int        `json:"reassignCount"`
	OfferRound           int        `json:"offerRound"`
	OriginalProId        *string    `json:"originalProId,omitempty"`
	CheckedInAt          *time.Time `json:"checkedInAt,omitempty"`
	CheckInUnverified    bool       `json:"checkInUnverified"`
	CheckInReason        string     `json:"checkInReason,omitempty"`
	CheckInDistanceMiles *float64   `json:"checkInDistanceMiles,omitempty"`
	Escalated            bool       `json:"escalated"`
	EscalationReason     string     `json:"escalationReason,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

type ClaimResult struct {
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
	Job     *Job   `json:"job,omitempty"`
}

type Candidate struct {
	Id            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	DistanceMiles float64 `json:"distanceMiles"`
	Rating        float64 `json:"rating"`
	Available     bool    `json:"available"`
}

type ClaimAttempt struct {
	ProId       string    `json:"proId"`
	Round       int       `json:"round"`
	Outcome     string    `json:"outcome"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

type Offer struct {
	ProId     string    `json:"proId"`
	Round     int       `json:"round"`
	Urgent    bool      `json:"urgent"`
	OfferedAt time.Time `json:"offeredAt"`
	Deadline  time.Time `json:"deadline"`
}

type DelayReportRecord struct {
	ProId      string    `json:"proId"`
	Reason     string    `json:"reason"`
	ReportedAt time.Time `json:"reportedAt"`
}

type TimelineEntry struct {
	Kind      string    `json:"kind"`
	ProId     *string   `json:"proId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type DispatchHistory struct {
	Job           Job                 `json:"job"`
	ClaimAttempts []ClaimAttempt      `json:"claimAttempts"`
	Offers        []Offer             `json:"offers"`
	DelayReports  []DelayReportRecord `json:"delayReports"`
	Timeline      []TimelineEntry     `json:"timeline"`
}

type Pro struct {
	Id            string     `json:"id"`
	Name          string     `json:"name"`
	ServiceTypes  []string   `json:"serviceTypes"`
	Location      Location   `json:"location"`
	Rating        float64    `json:"rating"`
	Available     bool       `json:"available"`
	Online        bool       `json:"online"`
	CanAcceptJobs bool       `json:"canAcceptJobs"`
	NoShowCount   int        `json:"noShowCount"`
	LastNoShowAt  *time.Time `json:"lastNoShowAt,omitempty"`
}

type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}
