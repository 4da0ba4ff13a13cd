// Package hub fans dashboard messages out to connected WebSocket observers.
// Every observer gets the broadcast stream plus its own periodic stats push;
// a failed send disconnects only that observer.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/netwatch-labs/ddos-dashboard/internal/types"
)

// Prometheus metrics (registered once).
var (
	connectedObservers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_connected_observers",
			Help: "Currently connected WebSocket observers",
		},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_messages_sent_total",
			Help: "Messages delivered to observers",
		},
		[]string{"type"},
	)
	sendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_send_errors_total",
			Help: "Failed observer deliveries",
		},
	)
)

func init() {
	prometheus.MustRegister(connectedObservers)
	prometheus.MustRegister(messagesSent)
	prometheus.MustRegister(sendErrors)
}

// Conn is the subset of *websocket.Conn the hub writes to. Kept small so
// tests can substitute fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// SnapshotSource supplies the dashboard view pushed on the periodic cycle.
type SnapshotSource interface {
	Snapshot() types.Snapshot
}

// Config for the hub.
type Config struct {
	// PushInterval is the per-observer stats push cadence.
	PushInterval time.Duration
	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
}

// observer is one live connection. Writes are serialized per observer since
// both broadcasts and the periodic pusher share the connection.
type observer struct {
	conn    Conn
	writeMu sync.Mutex
	done    chan struct{}
}

// Hub owns the live observer set.
type Hub struct {
	cfg    Config
	source SnapshotSource
	log    *logrus.Logger

	upgrader websocket.Upgrader

	mu        sync.RWMutex
	observers map[Conn]*observer
}

// New creates a Hub reading snapshots from source.
func New(cfg Config, source SnapshotSource, log *logrus.Logger) *Hub {
	if cfg.PushInterval == 0 {
		cfg.PushInterval = 5 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Hub{
		cfg:    cfg,
		source: source,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		observers: make(map[Conn]*observer),
	}
}

// Register adds an observer to the live set and starts its periodic stats
// push. Registering never fails for a usable connection.
func (h *Hub) Register(conn Conn) {
	obs := &observer{conn: conn, done: make(chan struct{})}

	h.mu.Lock()
	h.observers[conn] = obs
	total := len(h.observers)
	h.mu.Unlock()

	connectedObservers.Set(float64(total))
	h.log.WithField("total_connections", total).Info("Observer connected")

	go h.pushStats(obs)
}

// Unregister removes an observer, cancels its periodic push, and closes the
// connection. Safe to call more than once for the same connection.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	obs, ok := h.observers[conn]
	if ok {
		delete(h.observers, conn)
	}
	total := len(h.observers)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(obs.done)
	conn.Close()

	connectedObservers.Set(float64(total))
	h.log.WithField("total_connections", total).Info("Observer disconnected")
}

// Count returns the number of live observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Broadcast serializes msg once and delivers it to every live observer. The
// set is copied first so concurrent connects and disconnects never touch the
// in-flight delivery. An observer whose send fails is unregistered; the
// remaining observers are unaffected.
func (h *Hub) Broadcast(msg types.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode broadcast message")
		return
	}

	h.mu.RLock()
	targets := make([]*observer, 0, len(h.observers))
	for _, obs := range h.observers {
		targets = append(targets, obs)
	}
	h.mu.RUnlock()

	for _, obs := range targets {
		if err := h.send(obs, data); err != nil {
			sendErrors.Inc()
			h.log.WithError(err).Error("Error sending message to observer")
			h.Unregister(obs.conn)
			continue
		}
		messagesSent.WithLabelValues(msg.Type).Inc()
	}
}

// pushStats sends a stats_update to one observer every PushInterval until
// the observer is unregistered or a send fails.
func (h *Hub) pushStats(obs *observer) {
	ticker := time.NewTicker(h.cfg.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-obs.done:
			return
		case <-ticker.C:
			data, err := json.Marshal(types.StatsUpdate(h.source.Snapshot()))
			if err != nil {
				h.log.WithError(err).Error("Failed to encode stats update")
				continue
			}
			if err := h.send(obs, data); err != nil {
				sendErrors.Inc()
				h.log.WithError(err).Debug("Stats push failed, disconnecting observer")
				h.Unregister(obs.conn)
				return
			}
			messagesSent.WithLabelValues(types.MessageStatsUpdate).Inc()
		}
	}
}

func (h *Hub) send(obs *observer, data []byte) error {
	obs.writeMu.Lock()
	defer obs.writeMu.Unlock()
	if err := obs.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
		return err
	}
	return obs.conn.WriteMessage(websocket.TextMessage, data)
}

// ServeWS upgrades an HTTP request to a WebSocket observer connection and
// blocks until the peer drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	h.Register(conn)
	defer h.Unregister(conn)

	// Observers only listen; drain the connection until it closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
