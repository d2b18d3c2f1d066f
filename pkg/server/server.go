// Package server implements the RiceCall realtime channel service: session
// admission, channel membership transitions, authorization, and room-scoped
// fan-out over websockets.
package server

import (
	"context"
	"time"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/auth"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/store"
)

// Config holds server configuration.
type Config struct {
	ListenAddr string // HTTP bind address for the websocket and ops endpoints (e.g. ":9700")
	DBPath     string // SQLite database path
	JWTSecret  string // HMAC secret for admission tokens

	ServerName       string // name of the community seeded on first start
	ServerVisibility string // visibility of the seeded community ("public" or "private")

	PaceInterval    time.Duration // delay between cascade sub-steps (0 = no pacing)
	MetricsInterval time.Duration // periodic metrics log interval (0 = disabled)

	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":9700",
		DBPath:           "ricecall.db",
		ServerName:       "RiceCall",
		ServerVisibility: "public",
		PaceInterval:     100 * time.Millisecond,
		MetricsInterval:  time.Minute,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
// Tracker and Pacer are optional; nil selects no-op presence and
// config-driven sleep pacing respectively.
type Dependencies struct {
	Store   store.DataStore
	Tracker PresenceTracker
	Pacer   Pacer
}

// Server is the main RiceCall server.
type Server struct {
	cfg      Config
	store    store.DataStore
	sessions *SessionRegistry
	rooms    *RoomManager
	cast     Broadcaster
	authz    *AuthorizationContext
	machine  *ChannelStateMachine
	handler  *Handler
	verifier auth.Verifier
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	tracker := deps.Tracker
	if tracker == nil {
		tracker = NopTracker{}
	}
	pacer := deps.Pacer
	if pacer == nil {
		pacer = NewSleepPacer(cfg.PaceInterval)
	}

	metrics := NewMetrics()
	sessions := NewSessionRegistry()
	rooms := NewRoomManager()
	cast := NewBroadcaster(rooms, sessions, metrics)
	authz := NewAuthorizationContext(deps.Store)
	machine := NewChannelStateMachine(deps.Store, rooms, cast, sessions, tracker, pacer, metrics)
	handler := NewHandler(deps.Store, authz, machine, sessions, rooms, metrics)

	return &Server{
		cfg:      cfg,
		store:    deps.Store,
		sessions: sessions,
		rooms:    rooms,
		cast:     cast,
		authz:    authz,
		machine:  machine,
		handler:  handler,
		verifier: auth.NewJWTVerifier(cfg.JWTSecret),
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Machine returns the channel state machine.
func (s *Server) Machine() *ChannelStateMachine {
	return s.machine
}

// Sessions returns the session registry.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
