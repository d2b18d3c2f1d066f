package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxChannelNameLength = 64
	MaxChannelUserLimit  = 999
)

var (
	ErrChannelNameEmpty   = errors.New("channel name must not be empty")
	ErrChannelNameTooLong = errors.New("channel name too long")
	ErrChannelUserLimit   = errors.New("channel user limit out of range")
	ErrChannelOrder       = errors.New("channel order must not be negative")
	ErrInvalidVisibility  = errors.New("invalid channel visibility")
	ErrInvalidVoiceMode   = errors.New("invalid voice mode")
	ErrInvalidChannelType = errors.New("invalid channel type")
)

// ChannelType distinguishes plain channels from grouping categories.
// A category shares its ID as the CategoryID of its children and cannot
// itself be nested under another category.
type ChannelType string

const (
	TypeChannel  ChannelType = "channel"
	TypeCategory ChannelType = "category"
)

func (t ChannelType) Valid() bool {
	return t == TypeChannel || t == TypeCategory
}

// ChannelVisibility controls who may join a channel.
type ChannelVisibility string

const (
	ChannelPublic   ChannelVisibility = "public"
	ChannelMember   ChannelVisibility = "member"
	ChannelPrivate  ChannelVisibility = "private"
	ChannelReadonly ChannelVisibility = "readonly"
)

func (v ChannelVisibility) Valid() bool {
	switch v {
	case ChannelPublic, ChannelMember, ChannelPrivate, ChannelReadonly:
		return true
	}
	return false
}

// VoiceMode controls how occupants take the microphone.
type VoiceMode string

const (
	VoiceFree      VoiceMode = "free"
	VoiceQueue     VoiceMode = "queue"
	VoiceForbidden VoiceMode = "forbidden"
)

func (m VoiceMode) Valid() bool {
	switch m {
	case VoiceFree, VoiceQueue, VoiceForbidden:
		return true
	}
	return false
}

// Channel represents one node of a server's channel tree.
// Exactly one channel per server has IsLobby set; the lobby can never be
// deleted, limited, or made non-public.
type Channel struct {
	ID         string            `json:"id"`
	ServerID   string            `json:"server_id"`
	CategoryID string            `json:"category_id"` // "" = root level
	Name       string            `json:"name"`
	Type       ChannelType       `json:"type"`
	IsLobby    bool              `json:"is_lobby"`
	Visibility ChannelVisibility `json:"visibility"`
	VoiceMode  VoiceMode         `json:"voice_mode"`
	UserLimit  int               `json:"user_limit"` // 0 = unlimited
	Password   string            `json:"-"`          // bcrypt hash, "" = no gate
	Order      int               `json:"order"`

	// Text policy, observed by the update diff messages.
	ForbidText         bool `json:"forbid_text"`
	ForbidGuestText    bool `json:"forbid_guest_text"`
	ForbidGuestURL     bool `json:"forbid_guest_url"`
	GuestTextMaxLength int  `json:"guest_text_max_length"`
	GuestTextWaitTime  int  `json:"guest_text_wait_time"` // seconds
	GuestTextGapTime   int  `json:"guest_text_gap_time"`  // seconds

	CreatedAt time.Time `json:"created_at"`
}

// NewChannel returns a channel with default presentation values.
func NewChannel(serverID, name string) *Channel {
	return &Channel{
		ServerID:   serverID,
		Name:       name,
		Type:       TypeChannel,
		Visibility: ChannelPublic,
		VoiceMode:  VoiceFree,
	}
}

// Validate checks the channel's own fields, returning the first violation.
func (ch *Channel) Validate() error {
	if strings.TrimSpace(ch.Name) == "" {
		return ErrChannelNameEmpty
	}
	if utf8.RuneCountInString(ch.Name) > MaxChannelNameLength {
		return ErrChannelNameTooLong
	}
	if !ch.Type.Valid() {
		return ErrInvalidChannelType
	}
	if !ch.Visibility.Valid() {
		return ErrInvalidVisibility
	}
	if !ch.VoiceMode.Valid() {
		return ErrInvalidVoiceMode
	}
	if ch.UserLimit < 0 || ch.UserLimit > MaxChannelUserLimit {
		return ErrChannelUserLimit
	}
	if ch.Order < 0 {
		return ErrChannelOrder
	}
	return nil
}

// ChannelPatch is a partial update for a channel. Nil fields are left
// untouched by Apply.
type ChannelPatch struct {
	Name       *string            `json:"name,omitempty"`
	Type       *ChannelType       `json:"type,omitempty"`
	Visibility *ChannelVisibility `json:"visibility,omitempty"`
	VoiceMode  *VoiceMode         `json:"voice_mode,omitempty"`
	UserLimit  *int               `json:"user_limit,omitempty"`
	Password   *string            `json:"password,omitempty"`
	Order      *int               `json:"order,omitempty"`
	CategoryID *string            `json:"category_id,omitempty"`

	ForbidText         *bool `json:"forbid_text,omitempty"`
	ForbidGuestText    *bool `json:"forbid_guest_text,omitempty"`
	ForbidGuestURL     *bool `json:"forbid_guest_url,omitempty"`
	GuestTextMaxLength *int  `json:"guest_text_max_length,omitempty"`
	GuestTextWaitTime  *int  `json:"guest_text_wait_time,omitempty"`
	GuestTextGapTime   *int  `json:"guest_text_gap_time,omitempty"`
}

// Apply copies the patch's non-nil fields onto the channel.
func (p *ChannelPatch) Apply(ch *Channel) {
	if p.Name != nil {
		ch.Name = *p.Name
	}
	if p.Type != nil {
		ch.Type = *p.Type
	}
	if p.Visibility != nil {
		ch.Visibility = *p.Visibility
	}
	if p.VoiceMode != nil {
		ch.VoiceMode = *p.VoiceMode
	}
	if p.UserLimit != nil {
		ch.UserLimit = *p.UserLimit
	}
	if p.Password != nil {
		ch.Password = *p.Password
	}
	if p.Order != nil {
		ch.Order = *p.Order
	}
	if p.CategoryID != nil {
		ch.CategoryID = *p.CategoryID
	}
	if p.ForbidText != nil {
		ch.ForbidText = *p.ForbidText
	}
	if p.ForbidGuestText != nil {
		ch.ForbidGuestText = *p.ForbidGuestText
	}
	if p.ForbidGuestURL != nil {
		ch.ForbidGuestURL = *p.ForbidGuestURL
	}
	if p.GuestTextMaxLength != nil {
		ch.GuestTextMaxLength = *p.GuestTextMaxLength
	}
	if p.GuestTextWaitTime != nil {
		ch.GuestTextWaitTime = *p.GuestTextWaitTime
	}
	if p.GuestTextGapTime != nil {
		ch.GuestTextGapTime = *p.GuestTextGapTime
	}
}
