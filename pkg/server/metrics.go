package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime websocket connections admitted
	ActiveConnections atomic.Int64 // current live connections
	FailedAuths       atomic.Int64 // rejected admission credentials
	SuccessfulAuths   atomic.Int64 // accepted admission credentials
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)
	ForcedLogouts     atomic.Int64 // sessions evicted by a newer login

	// Authorization counters
	Denials atomic.Int64 // guard denials (silent, expected outcomes)

	// Channel counters
	ChannelsCreated atomic.Int64 // channels created during this run
	ChannelsUpdated atomic.Int64 // channel updates persisted
	ChannelsDeleted atomic.Int64 // channels deleted during this run

	// Fan-out counters
	BroadcastsSent atomic.Int64 // room-scoped emissions
	ErrorsEmitted  atomic.Int64 // generic errors sent to acting connections
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	TotalDisconnects  int64 `json:"total_disconnects"`
	ForcedLogouts     int64 `json:"forced_logouts"`

	Denials int64 `json:"denials"`

	ChannelsCreated int64 `json:"channels_created"`
	ChannelsUpdated int64 `json:"channels_updated"`
	ChannelsDeleted int64 `json:"channels_deleted"`

	BroadcastsSent int64 `json:"broadcasts_sent"`
	ErrorsEmitted  int64 `json:"errors_emitted"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		ForcedLogouts:     m.ForcedLogouts.Load(),
		Denials:           m.Denials.Load(),
		ChannelsCreated:   m.ChannelsCreated.Load(),
		ChannelsUpdated:   m.ChannelsUpdated.Load(),
		ChannelsDeleted:   m.ChannelsDeleted.Load(),
		BroadcastsSent:    m.BroadcastsSent.Load(),
		ErrorsEmitted:     m.ErrorsEmitted.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"denials", s.Denials,
		"broadcasts", s.BroadcastsSent,
		"errors", s.ErrorsEmitted,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
