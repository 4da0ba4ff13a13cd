// Package stats provides the rolling statistics store for the dashboard:
// bounded anomaly and traffic histories plus append-only per-IP, protocol,
// and hourly counters, with derived snapshots recomputed on demand.
package stats

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/netwatch-labs/ddos-dashboard/internal/types"
)

const (
	// HistoryCap bounds the anomaly history; oldest entries are evicted FIFO.
	HistoryCap = 1000
	// TrafficCap bounds the traffic sample history.
	TrafficCap = 100

	// RecentWindow is the lookback for the recent anomaly count.
	RecentWindow = time.Hour
	// TrendLen is how many traffic samples a snapshot includes.
	TrendLen = 24
	// RecentLen is how many anomalies a snapshot includes.
	RecentLen = 20
	// TopIPLimit is the ranking size included in a snapshot.
	TopIPLimit = 10

	hourBucketLayout = "15:00"
)

// ErrInvalidSample is returned when a traffic sample reports more anomalies
// than total requests.
var ErrInvalidSample = errors.New("anomaly count exceeds total requests")

// Prometheus metrics (registered once).
var (
	anomaliesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_anomalies_ingested_total",
			Help: "Total anomaly events ingested into the stats store",
		},
		[]string{"protocol"},
	)
	samplesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_traffic_samples_rejected_total",
			Help: "Traffic samples rejected as inconsistent",
		},
	)
	uniqueSourceIPs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_unique_source_ips",
			Help: "Distinct source IPs observed since startup",
		},
	)
)

func init() {
	prometheus.MustRegister(anomaliesIngested)
	prometheus.MustRegister(samplesRejected)
	prometheus.MustRegister(uniqueSourceIPs)
}

// Store holds all accumulated dashboard state. All state is process-lifetime
// only; nothing is persisted. Safe for concurrent use.
type Store struct {
	log *logrus.Logger

	mu            sync.RWMutex
	history       []types.AnomalyEvent
	traffic       []types.TrafficSample
	ipStats       map[string]*types.IPStat
	protocolStats map[string]int
	hourlyStats   map[string]int

	// Overridable for tests.
	now func() time.Time
}

// New creates an empty Store.
func New(log *logrus.Logger) *Store {
	return &Store{
		log:           log,
		ipStats:       make(map[string]*types.IPStat),
		protocolStats: make(map[string]int),
		hourlyStats:   make(map[string]int),
		now:           time.Now,
	}
}

// RecordAnomaly stamps the event with the ingestion time, appends it to the
// bounded history, and updates the per-IP, protocol, and hourly counters.
// Missing string fields are replaced with the Unknown sentinel; ingestion
// never fails. The stored event (with timestamp) is returned.
func (s *Store) RecordAnomaly(ev types.AnomalyEvent) types.AnomalyEvent {
	ev = ev.Normalize()

	s.mu.Lock()
	now := s.now()
	ev.Timestamp = now

	s.history = append(s.history, ev)
	if len(s.history) > HistoryCap {
		s.history = s.history[len(s.history)-HistoryCap:]
	}

	stat, ok := s.ipStats[ev.SrcIP]
	if !ok {
		stat = &types.IPStat{}
		s.ipStats[ev.SrcIP] = stat
	}
	stat.Count++
	stat.LastSeen = now

	s.protocolStats[ev.Protocol]++
	s.hourlyStats[now.Format(hourBucketLayout)]++

	uniqueSourceIPs.Set(float64(len(s.ipStats)))
	s.mu.Unlock()

	anomaliesIngested.WithLabelValues(ev.Protocol).Inc()
	return ev
}

// RecordTraffic appends a traffic sample to the bounded history. A sample
// reporting more anomalies than requests is rejected with ErrInvalidSample
// and leaves the history untouched.
func (s *Store) RecordTraffic(totalRequests, anomalyCount int) error {
	if anomalyCount > totalRequests {
		samplesRejected.Inc()
		s.log.WithFields(logrus.Fields{
			"total_requests": totalRequests,
			"anomaly_count":  anomalyCount,
		}).Warn("Rejected inconsistent traffic sample")
		return ErrInvalidSample
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.traffic = append(s.traffic, types.TrafficSample{
		Timestamp:     s.now(),
		TotalRequests: totalRequests,
		AnomalyCount:  anomalyCount,
		NormalCount:   totalRequests - anomalyCount,
	})
	if len(s.traffic) > TrafficCap {
		s.traffic = s.traffic[len(s.traffic)-TrafficCap:]
	}
	return nil
}

// Seen reports whether a candidate matches an event already in the history.
// Only source-provided fields are compared; the ingestion timestamp is
// excluded so dedup works on records the source has no timestamp for. The
// candidate is normalized first since the history only holds normalized
// events.
func (s *Store) Seen(candidate types.AnomalyEvent) bool {
	candidate = candidate.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.history {
		if s.history[i].SameSource(candidate) {
			return true
		}
	}
	return false
}

// Snapshot computes the full dashboard view at call time.
func (s *Store) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-RecentWindow)
	recentCount := 0
	for i := range s.history {
		if s.history[i].Timestamp.After(cutoff) {
			recentCount++
		}
	}

	return types.Snapshot{
		TotalAnomalies:       len(s.history),
		RecentAnomaliesCount: recentCount,
		TopAttackingIPs:      s.topIPsLocked(TopIPLimit),
		ProtocolDistribution: copyCounts(s.protocolStats),
		TrafficTrend:         tailSamples(s.traffic, TrendLen),
		RecentAnomalies:      tailEvents(s.history, RecentLen),
		HourlyDistribution:   copyCounts(s.hourlyStats),
	}
}

// TotalAnomalies returns the current anomaly history length.
func (s *Store) TotalAnomalies() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// RecentAnomalies returns the most recent limit events in insertion order.
// A non-positive limit returns the whole history.
func (s *Store) RecentAnomalies(limit int) []types.AnomalyEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = len(s.history)
	}
	return tailEvents(s.history, limit)
}

// TopIPs returns up to limit source IPs ranked by attack count. Ties are
// broken by most recent activity, then lexically by IP, so the ordering is
// deterministic.
func (s *Store) TopIPs(limit int) []types.TopIP {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topIPsLocked(limit)
}

func (s *Store) topIPsLocked(limit int) []types.TopIP {
	ranked := make([]types.TopIP, 0, len(s.ipStats))
	for ip, stat := range s.ipStats {
		ranked = append(ranked, types.TopIP{IP: ip, Count: stat.Count, LastSeen: stat.LastSeen})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		if !ranked[i].LastSeen.Equal(ranked[j].LastSeen) {
			return ranked[i].LastSeen.After(ranked[j].LastSeen)
		}
		return ranked[i].IP < ranked[j].IP
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func tailEvents(events []types.AnomalyEvent, n int) []types.AnomalyEvent {
	start := len(events) - n
	if start < 0 {
		start = 0
	}
	out := make([]types.AnomalyEvent, len(events)-start)
	copy(out, events[start:])
	return out
}

func tailSamples(samples []types.TrafficSample, n int) []types.TrafficSample {
	start := len(samples) - n
	if start < 0 {
		start = 0
	}
	out := make([]types.TrafficSample, len(samples)-start)
	copy(out, samples[start:])
	return out
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
