package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
)

func request(t *testing.T, action string, payload any) Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Request{Type: action, Data: data}
}

func TestDispatchConnectSelf(t *testing.T) {
	f := newFixture(t)
	_, conn := f.addUser(t, "u1", model.PermissionMember)

	f.handler.Dispatch(conn, request(t, ActionConnectToChannel, ConnectToChannelPayload{
		UserID: "u1", ChannelID: "lobby", ServerID: "s1",
	}))

	stored := f.getUser(t, "u1")
	if stored.CurrentChannelID != "lobby" {
		t.Fatalf("user channel=%q want lobby", stored.CurrentChannelID)
	}
	for _, typ := range conn.eventTypes() {
		if typ == EventError {
			t.Fatal("successful connect emitted an error event")
		}
	}
}

func TestDispatchDenialIsSilent(t *testing.T) {
	f := newFixture(t)
	f.addChannel(t, "members-only", func(ch *model.Channel) { ch.Visibility = model.ChannelMember })
	_, conn := f.addUser(t, "u1", 0) // guest

	f.handler.Dispatch(conn, request(t, ActionConnectToChannel, ConnectToChannelPayload{
		UserID: "u1", ChannelID: "members-only", ServerID: "s1",
	}))

	// Nothing reaches the client: no error event, no state change.
	if got := conn.eventTypes(); len(got) != 0 {
		t.Fatalf("denied connect emitted events: %v", got)
	}
	if stored := f.getUser(t, "u1"); stored.CurrentChannelID != "" {
		t.Fatalf("denied connect placed user in %q", stored.CurrentChannelID)
	}
	if f.metrics.Denials.Load() != 1 {
		t.Fatalf("denials=%d want 1", f.metrics.Denials.Load())
	}
}

func TestDenialLogsActorTargetChannel(t *testing.T) {
	f := newFixture(t)
	f.addChannel(t, "members-only", func(ch *model.Channel) { ch.Visibility = model.ChannelMember })
	_, conn := f.addUser(t, "u1", 0) // guest

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	f.handler.Dispatch(conn, request(t, ActionConnectToChannel, ConnectToChannelPayload{
		UserID: "u1", ChannelID: "members-only", ServerID: "s1",
	}))

	logged := buf.String()
	for _, want := range []string{
		"level=WARN",
		"actor=u1",
		"target=u1",
		"channel=members-only",
		"reason=",
	} {
		if !strings.Contains(logged, want) {
			t.Fatalf("denial log missing %q:\n%s", want, logged)
		}
	}
}

func TestDispatchMalformedPayload(t *testing.T) {
	f := newFixture(t)
	_, conn := f.addUser(t, "u1", model.PermissionMember)

	f.handler.Dispatch(conn, Request{Type: ActionConnectToChannel, Data: json.RawMessage(`{"user_id":42}`)})

	events := conn.lastEvents()
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("events=%v want one error", conn.eventTypes())
	}
	data := events[0].Data.(ErrorData)
	if data.Message != MsgServerError || data.Tag != "CONNECT_CHANNEL" {
		t.Fatalf("error data=%+v want generic message with connect tag", data)
	}
}

func TestDispatchValidationFailure(t *testing.T) {
	f := newFixture(t)
	_, conn := f.addUser(t, "u1", model.PermissionServerAdmin)

	// Missing required name.
	f.handler.Dispatch(conn, request(t, ActionCreateChannel, CreateChannelPayload{ServerID: "s1"}))

	events := conn.lastEvents()
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("events=%v want one error", conn.eventTypes())
	}
}

func TestDispatchStructuralOpsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	_, conn := f.addUser(t, "u1", model.PermissionMember)

	f.handler.Dispatch(conn, request(t, ActionCreateChannel, CreateChannelPayload{
		ServerID: "s1", Name: "general",
	}))

	if got := conn.eventTypes(); len(got) != 0 {
		t.Fatalf("denied create emitted events: %v", got)
	}
	channels, _ := f.st.ListServerChannels(context.Background(), "s1")
	if len(channels) != 1 { // only the lobby
		t.Fatalf("channels=%d want 1", len(channels))
	}
}

func TestDispatchCreateAndDelete(t *testing.T) {
	f := newFixture(t)
	_, conn := f.addUser(t, "admin", model.PermissionServerAdmin)

	f.handler.Dispatch(conn, request(t, ActionCreateChannel, CreateChannelPayload{
		ServerID: "s1", Name: "general",
	}))

	channels, _ := f.st.ListServerChannels(context.Background(), "s1")
	if len(channels) != 2 {
		t.Fatalf("channels=%d want 2", len(channels))
	}
	var created string
	for _, ch := range channels {
		if !ch.IsLobby {
			created = ch.ID
		}
	}

	f.handler.Dispatch(conn, request(t, ActionDeleteChannel, DeleteChannelPayload{
		ChannelID: created, ServerID: "s1",
	}))
	if f.getChannel(t, created) != nil {
		t.Fatal("channel survived delete")
	}
}

func TestDispatchUnknownActionIgnored(t *testing.T) {
	f := newFixture(t)
	_, conn := f.addUser(t, "u1", model.PermissionMember)

	f.handler.Dispatch(conn, Request{Type: "sing_a_song", Data: json.RawMessage(`{}`)})
	if got := conn.eventTypes(); len(got) != 0 {
		t.Fatalf("unknown action emitted events: %v", got)
	}
}

func TestHandleCloseRunsDisconnect(t *testing.T) {
	f := newFixture(t)
	user, conn := f.addUser(t, "u1", model.PermissionMember)
	f.connect(t, user, "lobby")

	f.handler.HandleClose(conn)

	stored := f.getUser(t, "u1")
	if stored.CurrentChannelID != "" {
		t.Fatalf("user still in %q after close", stored.CurrentChannelID)
	}
	if f.sessions.Lookup("u1") != nil {
		t.Fatal("session still registered after close")
	}
}

func TestHandleCloseSkipsSupersededSession(t *testing.T) {
	f := newFixture(t)
	user, oldConn := f.addUser(t, "u1", model.PermissionMember)
	f.connect(t, user, "lobby")

	// User reconnected on a new socket before the old one tore down.
	fresh := newFakeConn("u1")
	f.sessions.Register("u1", fresh)

	f.handler.HandleClose(oldConn)

	// The newer session keeps the user's placement.
	stored := f.getUser(t, "u1")
	if stored.CurrentChannelID != "lobby" {
		t.Fatalf("user channel=%q want lobby", stored.CurrentChannelID)
	}
	if f.sessions.Lookup("u1") == nil {
		t.Fatal("newer session was unregistered")
	}
}

func TestDispatchKickRequiresRank(t *testing.T) {
	f := newFixture(t)
	target, _ := f.addUser(t, "victim", model.PermissionServerAdmin)
	f.connect(t, target, "lobby")

	_, conn := f.addUser(t, "mod", model.PermissionChannelAdmin)
	f.handler.Dispatch(conn, request(t, ActionDisconnectFromChannel, DisconnectFromChannelPayload{
		UserID: "victim", ChannelID: "lobby", ServerID: "s1",
	}))

	if stored := f.getUser(t, "victim"); stored.CurrentChannelID != "lobby" {
		t.Fatalf("under-ranked kick moved target to %q", stored.CurrentChannelID)
	}
	if got := conn.eventTypes(); len(got) != 0 {
		t.Fatalf("denied kick emitted events: %v", got)
	}
}
