package server

import (
	"encoding/json"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
)

// Event is the outbound JSON envelope.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Request is the inbound JSON envelope; Data stays raw until the payload
// type for the action is known.
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound action types.
const (
	ActionConnectToChannel      = "connect_to_channel"
	ActionDisconnectFromChannel = "disconnect_from_channel"
	ActionCreateChannel         = "create_channel"
	ActionUpdateChannel         = "update_channel"
	ActionUpdateChannels        = "update_channels"
	ActionDeleteChannel         = "delete_channel"
)

// Outbound notification types.
const (
	EventUserUpdated          = "user_updated"
	EventServerMembersUpdated = "server_members_updated"
	EventChannelAdded         = "channel_added"
	EventChannelUpdated       = "channel_updated"
	EventChannelDeleted       = "channel_deleted"
	EventPlaySound            = "play_sound"
	EventRTCJoin              = "rtc_join"
	EventRTCLeave             = "rtc_leave"
	EventChannelMessage       = "channel_message"
	EventError                = "error"
	EventForcedLogout         = "forced_logout"
)

// Inbound payloads. Fields are whitelisted and validated before any handler
// logic runs; the acting user always comes from the connection identity,
// never from the payload.
type ConnectToChannelPayload struct {
	UserID    string `json:"user_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	ServerID  string `json:"server_id" validate:"required"`
	Password  string `json:"password"`
}

type DisconnectFromChannelPayload struct {
	UserID    string `json:"user_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	ServerID  string `json:"server_id" validate:"required"`
}

type CreateChannelPayload struct {
	ServerID   string                  `json:"server_id" validate:"required"`
	CategoryID string                  `json:"category_id"`
	Name       string                  `json:"name" validate:"required,max=64"`
	Visibility model.ChannelVisibility `json:"visibility" validate:"omitempty,oneof=public member private readonly"`
	VoiceMode  model.VoiceMode         `json:"voice_mode" validate:"omitempty,oneof=free queue forbidden"`
	UserLimit  int                     `json:"user_limit" validate:"gte=0,lte=999"`
	Password   string                  `json:"password"`
}

type UpdateChannelPayload struct {
	ChannelID string             `json:"channel_id" validate:"required"`
	ServerID  string             `json:"server_id" validate:"required"`
	Patch     model.ChannelPatch `json:"patch"`
}

type UpdateChannelsPayload struct {
	ServerID string                 `json:"server_id" validate:"required"`
	Channels []UpdateChannelPayload `json:"channels" validate:"required,min=1,dive"`
}

type DeleteChannelPayload struct {
	ChannelID string `json:"channel_id" validate:"required"`
	ServerID  string `json:"server_id" validate:"required"`
}

// Outbound payloads.

// SoundCue is an ambient sound hint played by the client.
type SoundCue struct {
	Sound string `json:"sound"` // "join" or "leave"
}

// RTCPeer announces a peer entering or leaving a channel's voice session.
type RTCPeer struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

// ChannelMessage is a chat or system message scoped to a channel room.
// Content carries a localization key resolved client-side; Arg is an
// optional value interpolated into the localized text.
type ChannelMessage struct {
	Type      string `json:"type"` // "info" or "alert"
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Arg       string `json:"arg,omitempty"`
}

// ChannelDeleted announces a removed channel to the server room.
type ChannelDeleted struct {
	ChannelID string `json:"channel_id"`
	ServerID  string `json:"server_id"`
}

// ErrorData is the single client-visible error kind. Message is a
// localization key that leaks nothing; Tag identifies the failing handler
// for diagnostics.
type ErrorData struct {
	Message string `json:"message"`
	Tag     string `json:"tag"`
}

// Localization keys for system messages.
const (
	MsgChannelModeFree      = "CHANNEL_VOICE_MODE_FREE_SPEECH"
	MsgChannelModeQueue     = "CHANNEL_VOICE_MODE_QUEUE"
	MsgChannelModeForbidden = "CHANNEL_VOICE_MODE_FORBIDDEN_SPEECH"

	MsgVoiceChangeToFree      = "VOICE_CHANGE_TO_FREE_SPEECH"
	MsgVoiceChangeToQueue     = "VOICE_CHANGE_TO_QUEUE"
	MsgVoiceChangeToForbidden = "VOICE_CHANGE_TO_FORBIDDEN_SPEECH"

	MsgTextChangeToForbidden = "TEXT_CHANGE_TO_FORBIDDEN_SPEECH"
	MsgTextChangeToFree      = "TEXT_CHANGE_TO_FREE_SPEECH"

	MsgGuestTextForbidden = "GUEST_TEXT_CHANGE_TO_FORBIDDEN"
	MsgGuestTextAllowed   = "GUEST_TEXT_CHANGE_TO_FREE"

	MsgGuestURLForbidden = "GUEST_TEXT_CHANGE_TO_FORBIDDEN_URL"
	MsgGuestURLAllowed   = "GUEST_TEXT_CHANGE_TO_ALLOWED_URL"

	MsgGuestTextMaxLength = "GUEST_TEXT_MAX_LENGTH_CHANGE"
	MsgGuestTextWaitTime  = "GUEST_TEXT_WAIT_TIME_CHANGE"
	MsgGuestTextGapTime   = "GUEST_TEXT_GAP_TIME_CHANGE"

	MsgServerError = "SERVER_ERROR"
)

// Room name helpers. Rooms scope broadcasts: one per server (all connected
// members) and one per channel (current occupants).
func serverRoom(serverID string) string {
	return "server:" + serverID
}

func channelRoom(channelID string) string {
	return "channel:" + channelID
}
