package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation, ordering, and not-found results.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	users    map[string]*model.User
	servers  map[string]*model.Server
	channels map[string]*model.Channel
	members  map[string]*model.Member // key: userID + "\x00" + serverID
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:      now,
		users:    make(map[string]*model.User),
		servers:  make(map[string]*model.Server),
		channels: make(map[string]*model.Channel),
		members:  make(map[string]*model.Member),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

func memberKey(userID, serverID string) string {
	return userID + "\x00" + serverID
}

// CreateUser inserts a new user row.
func (s *MemoryStore) CreateUser(_ context.Context, user *model.User) error {
	if user.ID == "" {
		return fmt.Errorf("store: create user: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("store: create user: constraint failed: UNIQUE constraint failed: users.id")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	copyUser := *user
	s.users[user.ID] = &copyUser
	return nil
}

// GetUser retrieves a user by ID.
func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copyUser := *user
	return &copyUser, nil
}

// SetUser overwrites a user row.
func (s *MemoryStore) SetUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return nil
	}
	copyUser := *user
	s.users[user.ID] = &copyUser
	return nil
}

// CreateServer inserts a new server row.
func (s *MemoryStore) CreateServer(_ context.Context, server *model.Server) error {
	if server.ID == "" {
		return fmt.Errorf("store: create server: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[server.ID]; exists {
		return fmt.Errorf("store: create server: constraint failed: UNIQUE constraint failed: servers.id")
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = s.now()
	}
	copyServer := *server
	s.servers[server.ID] = &copyServer
	return nil
}

// GetServer retrieves a server by ID.
func (s *MemoryStore) GetServer(_ context.Context, id string) (*model.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	server, ok := s.servers[id]
	if !ok {
		return nil, nil
	}
	copyServer := *server
	return &copyServer, nil
}

// SetServer overwrites a server row.
func (s *MemoryStore) SetServer(_ context.Context, server *model.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[server.ID]; !ok {
		return nil
	}
	copyServer := *server
	s.servers[server.ID] = &copyServer
	return nil
}

// ListServers returns all servers ordered by ID.
func (s *MemoryStore) ListServers(_ context.Context) ([]model.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]model.Server, 0, len(s.servers))
	for _, server := range s.servers {
		servers = append(servers, *server)
	}
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].ID < servers[j].ID
	})
	return servers, nil
}

// CreateChannel inserts a new channel row.
func (s *MemoryStore) CreateChannel(_ context.Context, channel *model.Channel) error {
	if channel.ID == "" {
		return fmt.Errorf("store: create channel: missing id")
	}
	if err := channel.Validate(); err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.channels[channel.ID]; exists {
		return fmt.Errorf("store: create channel: constraint failed: UNIQUE constraint failed: channels.id")
	}
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = s.now()
	}
	copyChannel := *channel
	s.channels[channel.ID] = &copyChannel
	return nil
}

// GetChannel retrieves a channel by ID.
func (s *MemoryStore) GetChannel(_ context.Context, id string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, nil
	}
	copyChannel := *ch
	return &copyChannel, nil
}

// SetChannel overwrites a channel row.
func (s *MemoryStore) SetChannel(_ context.Context, channel *model.Channel) error {
	if err := channel.Validate(); err != nil {
		return fmt.Errorf("store: set channel: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channel.ID]; !ok {
		return nil
	}
	copyChannel := *channel
	s.channels[channel.ID] = &copyChannel
	return nil
}

// DeleteChannel removes a channel row by ID.
func (s *MemoryStore) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, id)
	return nil
}

// ListServerChannels returns all channels of a server ordered by
// (category, order, id), matching the SQLite ordering.
func (s *MemoryStore) ListServerChannels(_ context.Context, serverID string) ([]model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var channels []model.Channel
	for _, ch := range s.channels {
		if ch.ServerID == serverID {
			channels = append(channels, *ch)
		}
	}
	sort.Slice(channels, func(i, j int) bool {
		if channels[i].CategoryID != channels[j].CategoryID {
			return channels[i].CategoryID < channels[j].CategoryID
		}
		if channels[i].Order != channels[j].Order {
			return channels[i].Order < channels[j].Order
		}
		return channels[i].ID < channels[j].ID
	})
	return channels, nil
}

// SetMember upserts a membership row.
func (s *MemoryStore) SetMember(_ context.Context, member *model.Member) error {
	if !member.PermissionLevel.Valid() {
		return fmt.Errorf("store: set member: invalid permission level %d", member.PermissionLevel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if member.CreatedAt.IsZero() {
		member.CreatedAt = s.now()
	}
	copyMember := *member
	s.members[memberKey(member.UserID, member.ServerID)] = &copyMember
	return nil
}

// GetMember retrieves a membership by (userID, serverID).
func (s *MemoryStore) GetMember(_ context.Context, userID, serverID string) (*model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[memberKey(userID, serverID)]
	if !ok {
		return nil, nil
	}
	copyMember := *member
	return &copyMember, nil
}

// ListServerMembers returns all memberships of a server ordered by user ID.
func (s *MemoryStore) ListServerMembers(_ context.Context, serverID string) ([]model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []model.Member
	for _, member := range s.members {
		if member.ServerID == serverID {
			members = append(members, *member)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].UserID < members[j].UserID
	})
	return members, nil
}

// ListChannelUsers returns the current occupants of a channel in join order.
func (s *MemoryStore) ListChannelUsers(_ context.Context, channelID string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []model.User
	for _, user := range s.users {
		if user.CurrentChannelID == channelID {
			users = append(users, *user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].LastActiveAt.Equal(users[j].LastActiveAt) {
			return users[i].LastActiveAt.Before(users[j].LastActiveAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// CountChannelUsers returns the current occupant count of a channel.
func (s *MemoryStore) CountChannelUsers(_ context.Context, channelID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, user := range s.users {
		if user.CurrentChannelID == channelID {
			count++
		}
	}
	return count, nil
}
