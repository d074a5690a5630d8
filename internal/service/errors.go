package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/uptend/dispatch/internal/store/model"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id.String(), "job")
}

func NewErrProNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "pro")
}

type ErrInvalidTransition struct {
	error
}

func NewErrInvalidTransition(jobID uuid.UUID, from model.JobStatus, action string) *ErrInvalidTransition {
	return &ErrInvalidTransition{fmt.Errorf("cannot %s job %s in status %s", action, jobID, from)}
}

type ErrNotAssignedPro struct {
	error
}

func NewErrNotAssignedPro(jobID uuid.UUID, proID string) *ErrNotAssignedPro {
	return &ErrNotAssignedPro{fmt.Errorf("pro %s is not assigned to job %s", proID, jobID)}
}

type ErrNotOfferedPro struct {
	error
}

func NewErrNotOfferedPro(jobID uuid.UUID, proID string) *ErrNotOfferedPro {
	return &ErrNotOfferedPro{fmt.Errorf("job %s was not offered to pro %s in its current round", jobID, proID)}
}

// ErrNoCandidatesAvailable means the selector found nobody to offer the job to.
// Dispatch retries it with a backoff before escalating.
type ErrNoCandidatesAvailable struct {
	error
}

func NewErrNoCandidatesAvailable(jobID uuid.UUID) *ErrNoCandidatesAvailable {
	return &ErrNoCandidatesAvailable{fmt.Errorf("no candidates available for job %s", jobID)}
}

type ErrCheckInOutOfRange struct {
	error
	Distance float64
	Radius   float64
}

func NewErrCheckInOutOfRange(jobID uuid.UUID, distance, radius float64) *ErrCheckInOutOfRange {
	return &ErrCheckInOutOfRange{
		error:    fmt.Errorf("check-in for job %s is %.2f miles away, the limit is %.2f miles: retry closer or check in manually with a reason", jobID, distance, radius),
		Distance: distance,
		Radius:   radius,
	}
}

type ErrCheckInTooLate struct {
	error
}

func NewErrCheckInTooLate(jobID uuid.UUID) *ErrCheckInTooLate {
	return &ErrCheckInTooLate{fmt.Errorf("the check-in deadline of job %s has passed", jobID)}
}

type ErrManualReasonRequired struct {
	error
}

func NewErrManualReasonRequired() *ErrManualReasonRequired {
	return &ErrManualReasonRequired{fmt.Errorf("a reason is required to check in without a location")}
}
