package server

import (
	"sync"
)

// RoomManager tracks which connections are in which logical room. Rooms are
// named ("server:<id>", "channel:<id>"); a connection may be in any number
// of them at once.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]bool
}

// NewRoomManager creates a new room manager.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]map[Conn]bool),
	}
}

// Join adds a connection to a room.
func (rm *RoomManager) Join(room string, conn Conn) {
	if conn == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.rooms[room]; !ok {
		rm.rooms[room] = make(map[Conn]bool)
	}
	rm.rooms[room][conn] = true
}

// Leave removes a connection from a room.
func (rm *RoomManager) Leave(room string, conn Conn) {
	if conn == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	members := rm.rooms[room]
	delete(members, conn)
	if len(members) == 0 {
		delete(rm.rooms, room)
	}
}

// LeaveAll removes a connection from every room it is in.
func (rm *RoomManager) LeaveAll(conn Conn) {
	if conn == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for room, members := range rm.rooms {
		if members[conn] {
			delete(members, conn)
			if len(members) == 0 {
				delete(rm.rooms, room)
			}
		}
	}
}

// Members returns the connections currently in a room.
func (rm *RoomManager) Members(room string) []Conn {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	members := rm.rooms[room]
	result := make([]Conn, 0, len(members))
	for conn := range members {
		result = append(result, conn)
	}
	return result
}

// Count returns how many connections are in a room.
func (rm *RoomManager) Count(room string) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms[room])
}
