// Package poller drives ingestion: it periodically pulls recent anomalies
// from the detection API, deduplicates them against stored history, feeds
// the stats store, and notifies the hub about genuinely new events.
package poller

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/netwatch-labs/ddos-dashboard/internal/stats"
	"github.com/netwatch-labs/ddos-dashboard/internal/types"
)

// anomalousResult is the outlier-detector label marking a record anomalous.
const anomalousResult = -1

var pollCycles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dashboard_poll_cycles_total",
		Help: "Detection API poll cycles by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(pollCycles)
}

// Source fetches recent anomaly candidates from the detection API.
type Source interface {
	FetchRecent(ctx context.Context) ([]types.AnomalyEvent, error)
}

// Broadcaster pushes discrete notifications to connected observers.
type Broadcaster interface {
	Broadcast(msg types.Message)
}

// Config for the poller.
type Config struct {
	// Interval between poll cycles.
	Interval time.Duration
	// TrafficBaseline is the synthetic request volume added to each traffic
	// sample on top of the candidate count.
	TrafficBaseline int
}

// Poller runs the ingestion loop for the lifetime of the process. Failures
// are contained per cycle; the loop itself never stops on error.
type Poller struct {
	cfg         Config
	source      Source
	store       *stats.Store
	broadcaster Broadcaster
	log         *logrus.Logger
}

// New creates a Poller.
func New(cfg Config, source Source, store *stats.Store, broadcaster Broadcaster, log *logrus.Logger) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Poller{
		cfg:         cfg,
		source:      source,
		store:       store,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Start runs the poll loop until ctx is cancelled. The first cycle runs
// immediately; later cycles follow the configured interval regardless of
// individual cycle failures.
func (p *Poller) Start(ctx context.Context) {
	p.log.WithField("interval", p.cfg.Interval).Info("Starting detection API poller")

	p.pollOnce(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Poller stopping")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce executes a single cycle: fetch, dedup, record, notify, sample.
// Any fetch failure logs and skips the cycle; no retry, no backoff.
func (p *Poller) pollOnce(ctx context.Context) {
	candidates, err := p.source.FetchRecent(ctx)
	if err != nil {
		pollCycles.WithLabelValues("error").Inc()
		p.log.WithError(err).Error("Error polling detection API")
		return
	}

	newCount := 0
	for _, candidate := range candidates {
		if p.store.Seen(candidate) {
			continue
		}
		// Record first, then notify: an event is never announced before it
		// is present in history.
		stored := p.store.RecordAnomaly(candidate)
		p.broadcaster.Broadcast(types.NewAnomaly(stored))
		newCount++
	}

	anomalyCount := 0
	for _, candidate := range candidates {
		if candidate.Result == anomalousResult {
			anomalyCount++
		}
	}
	totalRequests := len(candidates) + p.cfg.TrafficBaseline
	if err := p.store.RecordTraffic(totalRequests, anomalyCount); err != nil {
		p.log.WithError(err).Error("Failed to record traffic sample")
	}

	pollCycles.WithLabelValues("success").Inc()
	if newCount > 0 {
		p.log.WithFields(logrus.Fields{
			"candidates": len(candidates),
			"new":        newCount,
		}).Info("Ingested new anomalies")
	}
}
