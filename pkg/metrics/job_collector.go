package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptend/dispatch/internal/store"
	"go.uber.org/zap"
)

// jobStatusCollector reads the job table on every scrape.
type jobStatusCollector struct {
	store        store.Store
	jobsByStatus *prometheus.Desc
	escalated    *prometheus.Desc
}

func NewJobStatusCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_jobs_%s", dispatchSubsystem, name)
	}

	return &jobStatusCollector{
		store: s,
		jobsByStatus: prometheus.NewDesc(
			fqName("by_status"),
			"Number of jobs in each status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		escalated: prometheus.NewDesc(
			fqName("escalated"),
			"Number of jobs waiting for manual dispatch.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *jobStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsByStatus
	ch <- c.escalated
}

// Collect implements Collector.
func (c *jobStatusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.store.Job().Statistics(ctx)
	if err != nil {
		zap.S().Named("job_collector").Errorf("failed to collect job statistics: %s", err)
		return
	}

	for status, total := range stats.ByStatus {
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(total), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.escalated, prometheus.GaugeValue, float64(stats.Escalated))
}
