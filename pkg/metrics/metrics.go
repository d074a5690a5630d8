package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	dispatchSubsystem = "dispatch"

	claimsTotal            = "claims_total"
	offersTotal            = "offers_total"
	offerExpirationsTotal  = "offer_expirations_total"
	noShowsTotal           = "no_shows_total"
	checkInsTotal          = "check_ins_total"
	dispatchExhaustedTotal = "exhausted_total"
	pendingTimers          = "pending_timers"

	// Labels
	outcomeLabel  = "outcome"
	urgentLabel   = "urgent"
	strikeLabel   = "strike"
	verifiedLabel = "verified"
	reasonLabel   = "reason"
	kindLabel     = "kind"
)

/**
* Metrics definition
**/
var claimsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dispatchSubsystem,
		Name:      claimsTotal,
		Help:      "number of claim attempts partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var offersTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dispatchSubsystem,
		Name:      offersTotal,
		Help:      "number of pros a job was offered to",
	},
	[]string{urgentLabel},
)

var offerExpirationsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: dispatchSubsystem,
		Name:      offerExpirationsTotal,
		Help:      "number of offer windows that closed without a claim",
	},
)

var noShowsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dispatchSubsystem,
		Name:      noShowsTotal,
		Help:      "number of no-shows, partitioned by whether the pro got a strike",
	},
	[]string{strikeLabel},
)

var checkInsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dispatchSubsystem,
		Name:      checkInsTotal,
		Help:      "number of accepted check-ins, partitioned by location verification",
	},
	[]string{verifiedLabel},
)

var dispatchExhaustedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dispatchSubsystem,
		Name:      dispatchExhaustedTotal,
		Help:      "number of jobs escalated to manual dispatch",
	},
	[]string{reasonLabel},
)

var pendingTimersMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: dispatchSubsystem,
		Name:      pendingTimers,
		Help:      "number of armed dispatch timers",
	},
	[]string{kindLabel},
)

func IncreaseClaimsTotalMetric(outcome string) {
	claimsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseOffersTotalMetric(urgent bool, count int) {
	offersTotalMetric.With(prometheus.Labels{urgentLabel: strconv.FormatBool(urgent)}).Add(float64(count))
}

func IncreaseOfferExpirationsTotalMetric() {
	offerExpirationsTotalMetric.Inc()
}

func IncreaseNoShowsTotalMetric(strike bool) {
	noShowsTotalMetric.With(prometheus.Labels{strikeLabel: strconv.FormatBool(strike)}).Inc()
}

func IncreaseCheckInsTotalMetric(verified bool) {
	checkInsTotalMetric.With(prometheus.Labels{verifiedLabel: strconv.FormatBool(verified)}).Inc()
}

func IncreaseDispatchExhaustedTotalMetric(reason string) {
	dispatchExhaustedTotalMetric.With(prometheus.Labels{reasonLabel: reason}).Inc()
}

func UpdatePendingTimersMetric(kind string, delta int) {
	pendingTimersMetric.With(prometheus.Labels{kindLabel: kind}).Add(float64(delta))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(claimsTotalMetric)
	prometheus.MustRegister(offersTotalMetric)
	prometheus.MustRegister(offerExpirationsTotalMetric)
	prometheus.MustRegister(noShowsTotalMetric)
	prometheus.MustRegister(checkInsTotalMetric)
	prometheus.MustRegister(dispatchExhaustedTotalMetric)
	prometheus.MustRegister(pendingTimersMetric)
}
