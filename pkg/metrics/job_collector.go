package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/store"
	"go.uber.org/zap"
)

const collectTimeout = 5 * time.Second

// jobStatsCollector reports the stored jobs per status on every scrape.
type jobStatsCollector struct {
	store     store.Store
	byStatus  *prometheus.Desc
	storeUp   *prometheus.Desc
	statusSet []catalog.JobStatus
}

func NewJobStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_store_%s", ugcPipeline, name)
	}

	return &jobStatsCollector{
		store: s,
		byStatus: prometheus.NewDesc(
			fqName("jobs"),
			"Number of stored jobs by status.",
			[]string{statusLabel},
			prometheus.Labels{},
		),
		storeUp: prometheus.NewDesc(
			fqName("up"),
			"Whether the job store answered the last scrape.",
			nil,
			prometheus.Labels{},
		),
		statusSet: []catalog.JobStatus{catalog.JobRunning, catalog.JobCompleted, catalog.JobFailed},
	}
}

func (c *jobStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.byStatus
	ch <- c.storeUp
}

// Collect implements Collector.
func (c *jobStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	counts, err := c.store.Job().CountByStatus(ctx)
	if err != nil {
		zap.S().Named("job_collector").Errorf("failed to collect job statistics: %s", err)
		ch <- prometheus.MustNewConstMetric(c.storeUp, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.storeUp, prometheus.GaugeValue, 1)

	for _, status := range c.statusSet {
		ch <- prometheus.MustNewConstMetric(c.byStatus, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}
