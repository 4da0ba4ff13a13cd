// Package types defines the shared data model for anomaly events, traffic
// samples, dashboard snapshots, and the observer wire protocol.
package types

import "time"

// Sentinel value substituted for string fields the detection source omitted.
const UnknownField = "Unknown"

// AnomalyEvent is one suspicious network observation reported by the
// detection source. Timestamp is the ingestion time assigned by the stats
// store; the source never provides it.
type AnomalyEvent struct {
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	Protocol  string    `json:"protocol"`
	Score     float64   `json:"score"`
	Result    int       `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// SameSource reports whether two events describe the same source record.
// Only source-provided fields are compared; the ingestion timestamp is
// excluded so a freshly fetched candidate can match a stored event.
func (e AnomalyEvent) SameSource(other AnomalyEvent) bool {
	return e.SrcIP == other.SrcIP &&
		e.DstIP == other.DstIP &&
		e.Protocol == other.Protocol &&
		e.Score == other.Score &&
		e.Result == other.Result
}

// Normalize fills missing string fields with the Unknown sentinel so a
// partially populated record never fails ingestion.
func (e AnomalyEvent) Normalize() AnomalyEvent {
	if e.SrcIP == "" {
		e.SrcIP = UnknownField
	}
	if e.DstIP == "" {
		e.DstIP = UnknownField
	}
	if e.Protocol == "" {
		e.Protocol = UnknownField
	}
	return e
}

// TrafficSample is one synthetic traffic volume measurement derived per
// poll cycle.
type TrafficSample struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalRequests int       `json:"total_requests"`
	AnomalyCount  int       `json:"anomaly_count"`
	NormalCount   int       `json:"normal_count"`
}

// IPStat tracks per-source-IP attack activity.
type IPStat struct {
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// TopIP is one entry in a source-IP ranking.
type TopIP struct {
	IP       string    `json:"ip"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// Snapshot is the derived dashboard view, recomputed on demand and never
// persisted.
type Snapshot struct {
	TotalAnomalies       int             `json:"total_anomalies"`
	RecentAnomaliesCount int             `json:"recent_anomalies_count"`
	TopAttackingIPs      []TopIP         `json:"top_attacking_ips"`
	ProtocolDistribution map[string]int  `json:"protocol_distribution"`
	TrafficTrend         []TrafficSample `json:"traffic_trend"`
	RecentAnomalies      []AnomalyEvent  `json:"recent_anomalies"`
	HourlyDistribution   map[string]int  `json:"hourly_distribution"`
}

// Observer message types.
const (
	MessageStatsUpdate = "stats_update"
	MessageNewAnomaly  = "new_anomaly"
)

// Message is the envelope pushed to connected observers.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// StatsUpdate wraps a snapshot for the observer stream.
func StatsUpdate(s Snapshot) Message {
	return Message{Type: MessageStatsUpdate, Data: s}
}

// NewAnomaly wraps a freshly ingested event for the observer stream.
func NewAnomaly(e AnomalyEvent) Message {
	return Message{Type: MessageNewAnomaly, Data: e}
}
