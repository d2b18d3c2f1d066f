package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/rbac"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/store"
)

// opTimeout bounds each inbound operation, including its cascades.
const opTimeout = 30 * time.Second

// Handler decodes inbound requests, runs the guard, and drives the state
// machine. Failure handling follows two tracks: an authorization denial is
// an expected outcome and stays silent toward the client (a warning log is
// the only trace), while operational errors surface to the acting
// connection as a single generic error event.
type Handler struct {
	store    store.DataStore
	authz    *AuthorizationContext
	machine  *ChannelStateMachine
	sessions *SessionRegistry
	rooms    *RoomManager
	validate *validator.Validate
	metrics  *Metrics
}

// NewHandler wires the dispatch layer.
func NewHandler(st store.DataStore, authz *AuthorizationContext, machine *ChannelStateMachine,
	sessions *SessionRegistry, rooms *RoomManager, metrics *Metrics) *Handler {
	return &Handler{
		store:    st,
		authz:    authz,
		machine:  machine,
		sessions: sessions,
		rooms:    rooms,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// Dispatch routes one inbound request. A panic in a handler is contained
// here; it fails the request, not the server.
func (h *Handler) Dispatch(conn Conn, req Request) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic", "user", conn.UserID(), "action", req.Type, "panic", r)
			h.emitError(conn, newOpError(MsgServerError, "DISPATCH", fmt.Errorf("panic: %v", r)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var err error
	switch req.Type {
	case ActionConnectToChannel:
		err = h.handleConnect(ctx, conn, req.Data)
	case ActionDisconnectFromChannel:
		err = h.handleDisconnect(ctx, conn, req.Data)
	case ActionCreateChannel:
		err = h.handleCreate(ctx, conn, req.Data)
	case ActionUpdateChannel:
		err = h.handleUpdate(ctx, conn, req.Data)
	case ActionUpdateChannels:
		err = h.handleUpdateChannels(ctx, conn, req.Data)
	case ActionDeleteChannel:
		err = h.handleDelete(ctx, conn, req.Data)
	default:
		slog.Warn("unknown action", "user", conn.UserID(), "action", req.Type)
		return
	}

	if err != nil {
		slog.Error("operation failed", "user", conn.UserID(), "action", req.Type, "err", err)
		h.emitError(conn, err)
	}
}

// HandleClose runs the teardown path when a connection's read loop ends.
// The session entry is removed only if it still belongs to this connection,
// and the channel-leave transition runs only when the user has not already
// reconnected elsewhere.
func (h *Handler) HandleClose(conn Conn) {
	userID := conn.UserID()
	h.sessions.Remove(userID, conn)
	h.rooms.LeaveAll(conn)
	h.metrics.TotalDisconnects.Add(1)
	h.metrics.ActiveConnections.Add(-1)

	if h.sessions.Lookup(userID) != nil {
		return // superseded by a newer session
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	user, err := h.store.GetUser(ctx, userID)
	if err != nil || user == nil || user.CurrentChannelID == "" {
		return
	}
	server, err := h.store.GetServer(ctx, user.CurrentServerID)
	if err != nil || server == nil {
		return
	}
	if err := h.machine.Disconnect(ctx, user, server); err != nil {
		slog.Error("disconnect on close failed", "user", userID, "err", err)
	}
}

func (h *Handler) handleConnect(ctx context.Context, conn Conn, raw json.RawMessage) error {
	var p ConnectToChannelPayload
	if err := h.decode(raw, &p); err != nil {
		return newOpError(MsgServerError, "CONNECT_CHANNEL", err)
	}

	jc, err := h.authz.LoadJoin(ctx, conn.UserID(), p.UserID, p.ChannelID, p.ServerID)
	if err != nil {
		return newOpError(MsgServerError, "CONNECT_CHANNEL", err)
	}

	if d := jc.Decide(p.Password); !d.Allowed() {
		h.deny(conn, "connect_to_channel", p.UserID, p.ChannelID, d)
		return nil
	}

	return h.machine.Connect(ctx, jc.Target, jc.TargetMember, jc.Server, jc.Channel)
}

func (h *Handler) handleDisconnect(ctx context.Context, conn Conn, raw json.RawMessage) error {
	var p DisconnectFromChannelPayload
	if err := h.decode(raw, &p); err != nil {
		return newOpError(MsgServerError, "DISCONNECT_CHANNEL", err)
	}

	target, err := h.store.GetUser(ctx, p.UserID)
	if err != nil {
		return newOpError(MsgServerError, "DISCONNECT_CHANNEL", err)
	}
	if target == nil {
		return newOpError(MsgServerError, "DISCONNECT_CHANNEL", fmt.Errorf("user %q not found", p.UserID))
	}
	server, err := h.store.GetServer(ctx, p.ServerID)
	if err != nil {
		return newOpError(MsgServerError, "DISCONNECT_CHANNEL", err)
	}
	if server == nil {
		return newOpError(MsgServerError, "DISCONNECT_CHANNEL", fmt.Errorf("server %q not found", p.ServerID))
	}

	// Kicking someone else out needs moderation rank over them.
	if conn.UserID() != p.UserID {
		actorLevel, err := h.authz.ActorLevel(ctx, conn.UserID(), p.ServerID)
		if err != nil {
			return newOpError(MsgServerError, "DISCONNECT_CHANNEL", err)
		}
		targetLevel, err := h.authz.ActorLevel(ctx, p.UserID, p.ServerID)
		if err != nil {
			return newOpError(MsgServerError, "DISCONNECT_CHANNEL", err)
		}
		if d := rbac.RequireLevel(actorLevel, model.PermissionServerAdmin); !d.Allowed() {
			h.deny(conn, "disconnect_from_channel", p.UserID, p.ChannelID, d)
			return nil
		}
		if actorLevel < targetLevel {
			h.deny(conn, "disconnect_from_channel", p.UserID, p.ChannelID, rbac.Deny(rbac.ReasonTargetOutranks))
			return nil
		}
	}

	return h.machine.Disconnect(ctx, target, server)
}

func (h *Handler) handleCreate(ctx context.Context, conn Conn, raw json.RawMessage) error {
	var p CreateChannelPayload
	if err := h.decode(raw, &p); err != nil {
		return newOpError(MsgServerError, "CREATE_CHANNEL", err)
	}

	if denied := h.requireStructural(ctx, conn, "create_channel", p.ServerID, ""); denied {
		return nil
	}

	_, err := h.machine.Create(ctx, p)
	return err
}

func (h *Handler) handleUpdate(ctx context.Context, conn Conn, raw json.RawMessage) error {
	var p UpdateChannelPayload
	if err := h.decode(raw, &p); err != nil {
		return newOpError(MsgServerError, "UPDATE_CHANNEL", err)
	}

	if denied := h.requireStructural(ctx, conn, "update_channel", p.ServerID, p.ChannelID); denied {
		return nil
	}

	return h.machine.Update(ctx, p.ChannelID, p.Patch)
}

func (h *Handler) handleUpdateChannels(ctx context.Context, conn Conn, raw json.RawMessage) error {
	var p UpdateChannelsPayload
	if err := h.decode(raw, &p); err != nil {
		return newOpError(MsgServerError, "UPDATE_CHANNELS", err)
	}

	if denied := h.requireStructural(ctx, conn, "update_channels", p.ServerID, ""); denied {
		return nil
	}

	return h.machine.BatchUpdate(ctx, p.Channels)
}

func (h *Handler) handleDelete(ctx context.Context, conn Conn, raw json.RawMessage) error {
	var p DeleteChannelPayload
	if err := h.decode(raw, &p); err != nil {
		return newOpError(MsgServerError, "DELETE_CHANNEL", err)
	}

	if denied := h.requireStructural(ctx, conn, "delete_channel", p.ServerID, p.ChannelID); denied {
		return nil
	}

	return h.machine.Delete(ctx, p.ChannelID)
}

// requireStructural gates channel mutations behind server-admin rank.
// Returns true when the request was denied (and already logged). channelID
// may be empty for operations that do not act on an existing channel.
func (h *Handler) requireStructural(ctx context.Context, conn Conn, action, serverID, channelID string) bool {
	level, err := h.authz.ActorLevel(ctx, conn.UserID(), serverID)
	if err != nil {
		slog.Error("level lookup failed", "user", conn.UserID(), "action", action, "err", err)
		h.emitError(conn, newOpError(MsgServerError, "PERMISSION_CHECK", err))
		return true
	}
	if d := rbac.RequireLevel(level, model.PermissionServerAdmin); !d.Allowed() {
		h.deny(conn, action, "", channelID, d)
		return true
	}
	return false
}

// decode unmarshals and validates an inbound payload.
func (h *Handler) decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}

// deny records a silent denial. Nothing goes back to the client; the
// warning log is the only trace and names who tried to do what to whom.
func (h *Handler) deny(conn Conn, action, targetID, channelID string, d rbac.Decision) {
	h.metrics.Denials.Add(1)
	slog.Warn("denied",
		"actor", conn.UserID(),
		"action", action,
		"target", targetID,
		"channel", channelID,
		"reason", d.Reason(),
	)
}

// emitError sends the single generic error event to the acting connection.
func (h *Handler) emitError(conn Conn, err error) {
	h.metrics.ErrorsEmitted.Add(1)
	var opErr *OpError
	if !errors.As(err, &opErr) {
		opErr = newOpError(MsgServerError, "UNKNOWN", err)
	}
	conn.Send(Event{Type: EventError, Data: ErrorData{Message: opErr.Message, Tag: opErr.Tag}})
}
