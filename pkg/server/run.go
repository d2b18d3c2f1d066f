package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients come from the desktop app shell; origin enforcement
	// happens at the reverse proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Run starts the HTTP listener and blocks until ctx is cancelled or the
// listener fails. The store is closed on the way out.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			slog.Error("closing store", "err", err)
		}
	}()

	if err := s.ensureDefaultServer(ctx); err != nil {
		return fmt.Errorf("seed default server: %w", err)
	}

	if s.cfg.MetricsInterval > 0 {
		s.metrics.StartPeriodicLog(s.cfg.MetricsInterval, s.ctx.Done())
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", s.cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	slog.Info("shutting down")
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	s.sessions.Close()
	s.metrics.LogSummary()
	return nil
}

// handleWS admits a websocket client. The token's subject becomes the
// connection identity; a user row is created on first sight. Registering
// the session evicts any previous one.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := s.verifier.Verify(token)
	if err != nil {
		s.metrics.FailedAuths.Add(1)
		slog.Warn("admission rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		user = &model.User{
			ID:   userID,
			Name: r.URL.Query().Get("name"),
		}
		if user.Name == "" {
			user.Name = userID
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s.metrics.SuccessfulAuths.Add(1)
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)

	conn := newWSConn(userID, ws)
	if s.sessions.Lookup(userID) != nil {
		s.metrics.ForcedLogouts.Add(1)
	}
	s.sessions.Register(userID, conn)
	slog.Info("client connected", "user", userID, "remote", r.RemoteAddr)

	go conn.writePump()
	go func() {
		conn.readPump(func(req Request) {
			s.handler.Dispatch(conn, req)
		})
		s.handler.HandleClose(conn)
		slog.Info("client disconnected", "user", userID)
	}()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.metrics.JSON()))
}

// ensureDefaultServer seeds the community and its lobby on first start.
// The lobby is created undeletable, public, and unlimited; both lobby
// pointers reference it until a reception lobby is configured.
func (s *Server) ensureDefaultServer(ctx context.Context) error {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return err
	}
	if len(servers) > 0 {
		return nil
	}

	server := &model.Server{
		ID:         uuid.NewString(),
		Name:       s.cfg.ServerName,
		Visibility: model.ServerVisibility(s.cfg.ServerVisibility),
	}

	lobby := model.NewChannel(server.ID, "Lobby")
	lobby.ID = uuid.NewString()
	lobby.IsLobby = true

	server.LobbyID = lobby.ID
	server.ReceptionLobbyID = lobby.ID

	if err := s.store.CreateServer(ctx, server); err != nil {
		return err
	}
	if err := s.store.CreateChannel(ctx, lobby); err != nil {
		return err
	}
	slog.Info("seeded default server", "server", server.ID, "lobby", lobby.ID, "name", server.Name)
	return nil
}
