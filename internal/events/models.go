package events

import "time"

const (
	OfferedKind           string = "uptend.dispatch.offered"
	AcceptedKind          string = "uptend.dispatch.accepted"
	OfferExpiredKind      string = "uptend.dispatch.offer_expired"
	OfferDeclinedKind     string = "uptend.dispatch.offer_declined"
	NoShowWarningKind     string = "uptend.dispatch.no_show_warning"
	NoShowKind            string = "uptend.dispatch.no_show"
	NoShowReviewKind      string = "uptend.dispatch.no_show_review"
	CheckedInKind         string = "uptend.dispatch.checked_in"
	DelayReportedKind     string = "uptend.dispatch.delay_reported"
	DispatchExhaustedKind string = "uptend.dispatch.dispatch_exhausted"
	CancelledKind         string = "uptend.dispatch.cancelled"
	CompletedKind         string = "uptend.dispatch.completed"
)

// DispatchEvent is the payload of every dispatch event. Recipients lists the pros an offer went to.
type DispatchEvent struct {
	JobID            string     `json:"job_id"`
	Status           string     `json:"status"`
	ProID            string     `json:"pro_id,omitempty"`
	Recipients       []string   `json:"recipients,omitempty"`
	Urgent           bool       `json:"urgent"`
	Round            int        `json:"round"`
	ReassignCount    int        `json:"reassign_count"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	MinutesRemaining int        `json:"minutes_remaining,omitempty"`
	Message          string     `json:"message,omitempty"`
	Reason           string     `json:"reason,omitempty"`
}
