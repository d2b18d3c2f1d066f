package store

import (
	"context"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
)

// DataStore defines the persistence interface for all RiceCall entities.
// The default implementation is SQLite; MemoryStore mirrors it for tests.
//
// Get accessors return (nil, nil) when the record does not exist. Set
// accessors overwrite the full row (callers read-modify-write; the backend
// guarantees read-your-writes, nothing stronger).
type DataStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// ---- Users ----

	// CreateUser inserts a new user row.
	CreateUser(ctx context.Context, user *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// SetUser overwrites a user row.
	SetUser(ctx context.Context, user *model.User) error

	// ---- Servers ----

	// CreateServer inserts a new server row.
	CreateServer(ctx context.Context, server *model.Server) error

	// GetServer retrieves a server by ID.
	GetServer(ctx context.Context, id string) (*model.Server, error)

	// SetServer overwrites a server row.
	SetServer(ctx context.Context, server *model.Server) error

	// ListServers returns all servers.
	ListServers(ctx context.Context) ([]model.Server, error)

	// ---- Channels ----

	// CreateChannel inserts a new channel row.
	CreateChannel(ctx context.Context, channel *model.Channel) error

	// GetChannel retrieves a channel by ID.
	GetChannel(ctx context.Context, id string) (*model.Channel, error)

	// SetChannel overwrites a channel row.
	SetChannel(ctx context.Context, channel *model.Channel) error

	// DeleteChannel removes a channel row by ID.
	DeleteChannel(ctx context.Context, id string) error

	// ListServerChannels returns all channels of a server ordered by
	// (category_id, "order", id).
	ListServerChannels(ctx context.Context, serverID string) ([]model.Channel, error)

	// ---- Members ----

	// SetMember upserts a membership row keyed by (user_id, server_id).
	SetMember(ctx context.Context, member *model.Member) error

	// GetMember retrieves a membership by its compound key.
	GetMember(ctx context.Context, userID, serverID string) (*model.Member, error)

	// ListServerMembers returns all memberships of a server.
	ListServerMembers(ctx context.Context, serverID string) ([]model.Member, error)

	// ---- Occupancy ----

	// ListChannelUsers returns the users whose current channel is the given
	// one, in ascending last-join order.
	ListChannelUsers(ctx context.Context, channelID string) ([]model.User, error)

	// CountChannelUsers returns the current occupant count of a channel.
	CountChannelUsers(ctx context.Context, channelID string) (int, error)
}

// Compile-time checks: both implementations satisfy DataStore.
var (
	_ DataStore = (*Store)(nil)
	_ DataStore = (*MemoryStore)(nil)
)
