// Package model defines the core domain types for the RiceCall backend.
package model

import (
	"time"
)

// PermissionLevel is a member's rank inside one server. Every mutating
// action compares the actor's level against the target's.
type PermissionLevel int

const (
	PermissionGuest         PermissionLevel = 1 // visitor, no membership yet
	PermissionMember        PermissionLevel = 2
	PermissionChannelAdmin  PermissionLevel = 3
	PermissionCategoryAdmin PermissionLevel = 4
	PermissionServerAdmin   PermissionLevel = 5
	PermissionOwner         PermissionLevel = 6
)

func (p PermissionLevel) String() string {
	switch p {
	case PermissionGuest:
		return "guest"
	case PermissionMember:
		return "member"
	case PermissionChannelAdmin:
		return "channel-admin"
	case PermissionCategoryAdmin:
		return "category-admin"
	case PermissionServerAdmin:
		return "server-admin"
	case PermissionOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Valid reports whether the level is inside the 1..6 hierarchy.
func (p PermissionLevel) Valid() bool {
	return p >= PermissionGuest && p <= PermissionOwner
}

// ServerVisibility controls who may enter channels of a server.
type ServerVisibility string

const (
	ServerPublic  ServerVisibility = "public"
	ServerPrivate ServerVisibility = "private"
)

// User represents a registered user. CurrentServerID and CurrentChannelID
// are mutated only by connect/disconnect transitions, never directly.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	CurrentServerID  string    `json:"current_server_id"`  // "" = not in a server
	CurrentChannelID string    `json:"current_channel_id"` // "" = not in a channel
	LastActiveAt     time.Time `json:"last_active_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Server represents one community with its channel tree.
type Server struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	OwnerID          string           `json:"owner_id"`
	LobbyID          string           `json:"lobby_id"` // protected default channel
	ReceptionLobbyID string           `json:"reception_lobby_id"`
	Visibility       ServerVisibility `json:"visibility"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Member links a user to a server with a permission level.
// The compound key is (UserID, ServerID).
type Member struct {
	UserID            string          `json:"user_id"`
	ServerID          string          `json:"server_id"`
	PermissionLevel   PermissionLevel `json:"permission_level"`
	LastJoinChannelAt time.Time       `json:"last_join_channel_at"`
	CreatedAt         time.Time       `json:"created_at"`
}
