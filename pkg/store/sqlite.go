// Package store provides SQLite-backed persistence for users, servers,
// channels, and members.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store provides database access for all RiceCall entities.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and ensures the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		current_server_id  TEXT NOT NULL DEFAULT '',
		current_channel_id TEXT NOT NULL DEFAULT '',
		last_active_at     TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS servers (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		owner_id           TEXT NOT NULL,
		lobby_id           TEXT NOT NULL DEFAULT '',
		reception_lobby_id TEXT NOT NULL DEFAULT '',
		visibility         TEXT NOT NULL DEFAULT 'public',
		created_at         TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS channels (
		id                    TEXT PRIMARY KEY,
		server_id             TEXT NOT NULL,
		category_id           TEXT NOT NULL DEFAULT '',
		name                  TEXT NOT NULL,
		type                  TEXT NOT NULL DEFAULT 'channel',
		is_lobby              INTEGER NOT NULL DEFAULT 0,
		visibility            TEXT NOT NULL DEFAULT 'public',
		voice_mode            TEXT NOT NULL DEFAULT 'free',
		user_limit            INTEGER NOT NULL DEFAULT 0,
		password              TEXT NOT NULL DEFAULT '',
		sort_order            INTEGER NOT NULL DEFAULT 0,
		forbid_text           INTEGER NOT NULL DEFAULT 0,
		forbid_guest_text     INTEGER NOT NULL DEFAULT 0,
		forbid_guest_url      INTEGER NOT NULL DEFAULT 0,
		guest_text_max_length INTEGER NOT NULL DEFAULT 0,
		guest_text_wait_time  INTEGER NOT NULL DEFAULT 0,
		guest_text_gap_time   INTEGER NOT NULL DEFAULT 0,
		created_at            TEXT NOT NULL DEFAULT (datetime('now'))
	);
	CREATE INDEX IF NOT EXISTS idx_channels_server ON channels(server_id, category_id, sort_order);

	CREATE TABLE IF NOT EXISTS members (
		user_id              TEXT NOT NULL,
		server_id            TEXT NOT NULL,
		permission_level     INTEGER NOT NULL DEFAULT 1 CHECK(permission_level >= 1 AND permission_level <= 6),
		last_join_channel_at TEXT NOT NULL DEFAULT '',
		created_at           TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (user_id, server_id)
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dbTimeLayout)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dbTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ---- Users ----

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		return fmt.Errorf("store: create user: missing id")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, current_server_id, current_channel_id, last_active_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.CurrentServerID, user.CurrentChannelID,
		encodeTime(user.LastActiveAt), encodeTime(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns (nil, nil) if not found.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, current_server_id, current_channel_id, last_active_at, created_at
		 FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// SetUser overwrites a user row.
func (s *Store) SetUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, current_server_id = ?, current_channel_id = ?, last_active_at = ?
		 WHERE id = ?`,
		user.Name, user.CurrentServerID, user.CurrentChannelID,
		encodeTime(user.LastActiveAt), user.ID)
	if err != nil {
		return fmt.Errorf("store: set user: %w", err)
	}
	return nil
}

// ---- Servers ----

// CreateServer inserts a new server row.
func (s *Store) CreateServer(ctx context.Context, server *model.Server) error {
	if server.ID == "" {
		return fmt.Errorf("store: create server: missing id")
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (id, name, owner_id, lobby_id, reception_lobby_id, visibility, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		server.ID, server.Name, server.OwnerID, server.LobbyID,
		server.ReceptionLobbyID, string(server.Visibility), encodeTime(server.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: create server: %w", err)
	}
	return nil
}

// GetServer retrieves a server by ID. Returns (nil, nil) if not found.
func (s *Store) GetServer(ctx context.Context, id string) (*model.Server, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, lobby_id, reception_lobby_id, visibility, created_at
		 FROM servers WHERE id = ?`, id)
	server := &model.Server{}
	var visibility, createdAt string
	err := row.Scan(&server.ID, &server.Name, &server.OwnerID, &server.LobbyID,
		&server.ReceptionLobbyID, &visibility, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get server: %w", err)
	}
	server.Visibility = model.ServerVisibility(visibility)
	server.CreatedAt = decodeTime(createdAt)
	return server, nil
}

// SetServer overwrites a server row.
func (s *Store) SetServer(ctx context.Context, server *model.Server) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE servers SET name = ?, owner_id = ?, lobby_id = ?, reception_lobby_id = ?, visibility = ?
		 WHERE id = ?`,
		server.Name, server.OwnerID, server.LobbyID, server.ReceptionLobbyID,
		string(server.Visibility), server.ID)
	if err != nil {
		return fmt.Errorf("store: set server: %w", err)
	}
	return nil
}

// ListServers returns all servers.
func (s *Store) ListServers(ctx context.Context) ([]model.Server, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, owner_id, lobby_id, reception_lobby_id, visibility, created_at
		 FROM servers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var servers []model.Server
	for rows.Next() {
		var server model.Server
		var visibility, createdAt string
		if err := rows.Scan(&server.ID, &server.Name, &server.OwnerID, &server.LobbyID,
			&server.ReceptionLobbyID, &visibility, &createdAt); err != nil {
			return nil, fmt.Errorf("store: list servers: %w", err)
		}
		server.Visibility = model.ServerVisibility(visibility)
		server.CreatedAt = decodeTime(createdAt)
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// ---- Channels ----

const channelColumns = `id, server_id, category_id, name, type, is_lobby, visibility, voice_mode,
	user_limit, password, sort_order, forbid_text, forbid_guest_text, forbid_guest_url,
	guest_text_max_length, guest_text_wait_time, guest_text_gap_time, created_at`

// CreateChannel inserts a new channel row.
func (s *Store) CreateChannel(ctx context.Context, channel *model.Channel) error {
	if channel.ID == "" {
		return fmt.Errorf("store: create channel: missing id")
	}
	if err := channel.Validate(); err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (`+channelColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		channel.ID, channel.ServerID, channel.CategoryID, channel.Name,
		string(channel.Type), channel.IsLobby, string(channel.Visibility),
		string(channel.VoiceMode), channel.UserLimit, channel.Password, channel.Order,
		channel.ForbidText, channel.ForbidGuestText, channel.ForbidGuestURL,
		channel.GuestTextMaxLength, channel.GuestTextWaitTime, channel.GuestTextGapTime,
		encodeTime(channel.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	return nil
}

// GetChannel retrieves a channel by ID. Returns (nil, nil) if not found.
func (s *Store) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

// SetChannel overwrites a channel row.
func (s *Store) SetChannel(ctx context.Context, channel *model.Channel) error {
	if err := channel.Validate(); err != nil {
		return fmt.Errorf("store: set channel: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET category_id = ?, name = ?, type = ?, is_lobby = ?, visibility = ?,
		 voice_mode = ?, user_limit = ?, password = ?, sort_order = ?, forbid_text = ?,
		 forbid_guest_text = ?, forbid_guest_url = ?, guest_text_max_length = ?,
		 guest_text_wait_time = ?, guest_text_gap_time = ?
		 WHERE id = ?`,
		channel.CategoryID, channel.Name, string(channel.Type), channel.IsLobby,
		string(channel.Visibility), string(channel.VoiceMode), channel.UserLimit,
		channel.Password, channel.Order, channel.ForbidText, channel.ForbidGuestText,
		channel.ForbidGuestURL, channel.GuestTextMaxLength, channel.GuestTextWaitTime,
		channel.GuestTextGapTime, channel.ID)
	if err != nil {
		return fmt.Errorf("store: set channel: %w", err)
	}
	return nil
}

// DeleteChannel removes a channel row by ID.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete channel: %w", err)
	}
	return nil
}

// ListServerChannels returns all channels of a server.
func (s *Store) ListServerChannels(ctx context.Context, serverID string) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE server_id = ?
		 ORDER BY category_id, sort_order, id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannelRow(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// ---- Members ----

// SetMember upserts a membership row.
func (s *Store) SetMember(ctx context.Context, member *model.Member) error {
	if !member.PermissionLevel.Valid() {
		return fmt.Errorf("store: set member: invalid permission level %d", member.PermissionLevel)
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (user_id, server_id, permission_level, last_join_channel_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, server_id) DO UPDATE SET
		 permission_level = excluded.permission_level,
		 last_join_channel_at = excluded.last_join_channel_at`,
		member.UserID, member.ServerID, int(member.PermissionLevel),
		encodeTime(member.LastJoinChannelAt), encodeTime(member.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: set member: %w", err)
	}
	return nil
}

// GetMember retrieves a membership by (userID, serverID). Returns (nil, nil) if not found.
func (s *Store) GetMember(ctx context.Context, userID, serverID string) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, server_id, permission_level, last_join_channel_at, created_at
		 FROM members WHERE user_id = ? AND server_id = ?`, userID, serverID)
	member := &model.Member{}
	var level int
	var lastJoin, createdAt string
	err := row.Scan(&member.UserID, &member.ServerID, &level, &lastJoin, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get member: %w", err)
	}
	member.PermissionLevel = model.PermissionLevel(level)
	member.LastJoinChannelAt = decodeTime(lastJoin)
	member.CreatedAt = decodeTime(createdAt)
	return member, nil
}

// ListServerMembers returns all memberships of a server.
func (s *Store) ListServerMembers(ctx context.Context, serverID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, server_id, permission_level, last_join_channel_at, created_at
		 FROM members WHERE server_id = ? ORDER BY user_id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []model.Member
	for rows.Next() {
		var member model.Member
		var level int
		var lastJoin, createdAt string
		if err := rows.Scan(&member.UserID, &member.ServerID, &level, &lastJoin, &createdAt); err != nil {
			return nil, fmt.Errorf("store: list members: %w", err)
		}
		member.PermissionLevel = model.PermissionLevel(level)
		member.LastJoinChannelAt = decodeTime(lastJoin)
		member.CreatedAt = decodeTime(createdAt)
		members = append(members, member)
	}
	return members, rows.Err()
}

// ---- Occupancy ----

// ListChannelUsers returns the current occupants of a channel in join order.
func (s *Store) ListChannelUsers(ctx context.Context, channelID string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, current_server_id, current_channel_id, last_active_at, created_at
		 FROM users WHERE current_channel_id = ? ORDER BY last_active_at, id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("store: list channel users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountChannelUsers returns the current occupant count of a channel.
func (s *Store) CountChannelUsers(ctx context.Context, channelID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE current_channel_id = ?`, channelID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count channel users: %w", err)
	}
	return count, nil
}

// ---- scan helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user, err := scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

func scanUserRow(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var lastActive, createdAt string
	err := row.Scan(&user.ID, &user.Name, &user.CurrentServerID, &user.CurrentChannelID,
		&lastActive, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	user.LastActiveAt = decodeTime(lastActive)
	user.CreatedAt = decodeTime(createdAt)
	return user, nil
}

func scanChannel(row rowScanner) (*model.Channel, error) {
	ch, err := scanChannelRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

func scanChannelRow(row rowScanner) (*model.Channel, error) {
	ch := &model.Channel{}
	var chType, visibility, voiceMode, createdAt string
	err := row.Scan(&ch.ID, &ch.ServerID, &ch.CategoryID, &ch.Name, &chType, &ch.IsLobby,
		&visibility, &voiceMode, &ch.UserLimit, &ch.Password, &ch.Order,
		&ch.ForbidText, &ch.ForbidGuestText, &ch.ForbidGuestURL,
		&ch.GuestTextMaxLength, &ch.GuestTextWaitTime, &ch.GuestTextGapTime, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan channel: %w", err)
	}
	ch.Type = model.ChannelType(chType)
	ch.Visibility = model.ChannelVisibility(visibility)
	ch.VoiceMode = model.VoiceMode(voiceMode)
	ch.CreatedAt = decodeTime(createdAt)
	return ch, nil
}
