package server

// PresenceTracker is the external side system that accrues activity ("xp")
// while a user occupies any channel. Start fires on the Absent→Occupying
// transition, Stop when the user leaves entirely; moving between channels
// triggers neither.
type PresenceTracker interface {
	Start(userID string)
	Stop(userID string)
}

// NopTracker is used when no presence system is wired.
type NopTracker struct{}

func (NopTracker) Start(string) {}
func (NopTracker) Stop(string)  {}
