package server

// Broadcaster turns completed mutations into room-scoped and direct
// emissions. It holds no ordering state of its own: callers emit in the
// order the contract requires (all leave-side effects on the old channel
// room before any join-side effect on the new one, the voice-mode info
// message last).
type Broadcaster interface {
	// ToRoom sends an event to every connection in a room.
	ToRoom(room string, event Event)

	// ToUser sends an event directly to a user's live connection, if any.
	ToUser(userID string, event Event)
}

// roomBroadcaster is the production Broadcaster backed by the room manager
// and session registry.
type roomBroadcaster struct {
	rooms    *RoomManager
	sessions *SessionRegistry
	metrics  *Metrics
}

// NewBroadcaster creates the production broadcaster.
func NewBroadcaster(rooms *RoomManager, sessions *SessionRegistry, metrics *Metrics) Broadcaster {
	return &roomBroadcaster{rooms: rooms, sessions: sessions, metrics: metrics}
}

func (b *roomBroadcaster) ToRoom(room string, event Event) {
	for _, conn := range b.rooms.Members(room) {
		conn.Send(event)
	}
	b.metrics.BroadcastsSent.Add(1)
}

func (b *roomBroadcaster) ToUser(userID string, event Event) {
	if conn := b.sessions.Lookup(userID); conn != nil {
		conn.Send(event)
	}
}
