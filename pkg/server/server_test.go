package server

import (
	"context"
	"sync"
	"testing"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/store"
)

// fakeConn records every event sent to it, in order.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	closed bool
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{id: userID}
}

func (c *fakeConn) UserID() string { return c.id }

func (c *fakeConn) Send(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) eventTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, 0, len(c.events))
	for _, e := range c.events {
		types = append(types, e.Type)
	}
	return types
}

func (c *fakeConn) lastEvents() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// recordTracker records presence hook invocations.
type recordTracker struct {
	mu     sync.Mutex
	starts []string
	stops  []string
}

func (r *recordTracker) Start(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, userID)
}

func (r *recordTracker) Stop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, userID)
}

// fixture is a fully wired server core over the in-memory store, with a
// seeded community and lobby.
type fixture struct {
	st       *store.MemoryStore
	sessions *SessionRegistry
	rooms    *RoomManager
	cast     Broadcaster
	authz    *AuthorizationContext
	machine  *ChannelStateMachine
	handler  *Handler
	metrics  *Metrics
	tracker  *recordTracker

	server *model.Server
	lobby  *model.Channel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemory()
	metrics := NewMetrics()
	sessions := NewSessionRegistry()
	rooms := NewRoomManager()
	cast := NewBroadcaster(rooms, sessions, metrics)
	authz := NewAuthorizationContext(st)
	tracker := &recordTracker{}
	machine := NewChannelStateMachine(st, rooms, cast, sessions, tracker, NopPacer{}, metrics)
	handler := NewHandler(st, authz, machine, sessions, rooms, metrics)

	server := &model.Server{
		ID: "s1", Name: "test", OwnerID: "owner",
		LobbyID: "lobby", ReceptionLobbyID: "lobby",
		Visibility: model.ServerPublic,
	}
	if err := st.CreateServer(ctx, server); err != nil {
		t.Fatalf("seed server: %v", err)
	}

	lobby := model.NewChannel("s1", "Lobby")
	lobby.ID = "lobby"
	lobby.IsLobby = true
	if err := st.CreateChannel(ctx, lobby); err != nil {
		t.Fatalf("seed lobby: %v", err)
	}

	return &fixture{
		st: st, sessions: sessions, rooms: rooms, cast: cast,
		authz: authz, machine: machine, handler: handler,
		metrics: metrics, tracker: tracker,
		server: server, lobby: lobby,
	}
}

// addChannel seeds a channel into the fixture's community.
func (f *fixture) addChannel(t *testing.T, id string, mut func(*model.Channel)) *model.Channel {
	t.Helper()
	ch := model.NewChannel(f.server.ID, "room "+id)
	ch.ID = id
	if mut != nil {
		mut(ch)
	}
	if err := f.st.CreateChannel(context.Background(), ch); err != nil {
		t.Fatalf("addChannel %s: %v", id, err)
	}
	return ch
}

// addUser seeds a user, optionally with a membership level, and registers a
// recording connection for them.
func (f *fixture) addUser(t *testing.T, id string, level model.PermissionLevel) (*model.User, *fakeConn) {
	t.Helper()
	ctx := context.Background()

	user := &model.User{ID: id, Name: id}
	if err := f.st.CreateUser(ctx, user); err != nil {
		t.Fatalf("addUser %s: %v", id, err)
	}
	if level > 0 {
		member := &model.Member{UserID: id, ServerID: f.server.ID, PermissionLevel: level}
		if err := f.st.SetMember(ctx, member); err != nil {
			t.Fatalf("addUser member %s: %v", id, err)
		}
	}

	conn := newFakeConn(id)
	f.sessions.Register(id, conn)
	return user, conn
}

// connect drives a full join through the state machine.
func (f *fixture) connect(t *testing.T, user *model.User, channelID string) {
	t.Helper()
	ctx := context.Background()

	channel, err := f.st.GetChannel(ctx, channelID)
	if err != nil || channel == nil {
		t.Fatalf("connect: channel %s: %v", channelID, err)
	}
	member, err := f.st.GetMember(ctx, user.ID, f.server.ID)
	if err != nil {
		t.Fatalf("connect: member: %v", err)
	}
	if err := f.machine.Connect(ctx, user, member, f.server, channel); err != nil {
		t.Fatalf("connect %s -> %s: %v", user.ID, channelID, err)
	}
}

func (f *fixture) getUser(t *testing.T, id string) *model.User {
	t.Helper()
	user, err := f.st.GetUser(context.Background(), id)
	if err != nil || user == nil {
		t.Fatalf("getUser %s: %v", id, err)
	}
	return user
}

func (f *fixture) getChannel(t *testing.T, id string) *model.Channel {
	t.Helper()
	ch, err := f.st.GetChannel(context.Background(), id)
	if err != nil {
		t.Fatalf("getChannel %s: %v", id, err)
	}
	return ch
}
