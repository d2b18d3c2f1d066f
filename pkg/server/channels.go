package server

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/auth"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/store"
)

// ChannelStateMachine executes validated channel transitions against the
// store and fans out the resulting notifications. It is invoked by the
// handlers after authorization, and composes internally by direct method
// calls: delete invokes update and connect, create invokes update. There is
// no locking across transitions; concurrent handlers touching the same user
// or channel interleave between reads and writes and the last write lands.
// Cascades are paced but not atomic: a failure mid-cascade leaves prior
// sub-steps committed.
type ChannelStateMachine struct {
	store    store.DataStore
	rooms    *RoomManager
	cast     Broadcaster
	sessions *SessionRegistry
	tracker  PresenceTracker
	pacer    Pacer
	metrics  *Metrics
	now      func() time.Time
}

// NewChannelStateMachine wires the state machine to its collaborators.
func NewChannelStateMachine(st store.DataStore, rooms *RoomManager, cast Broadcaster,
	sessions *SessionRegistry, tracker PresenceTracker, pacer Pacer, metrics *Metrics) *ChannelStateMachine {
	return &ChannelStateMachine{
		store:    st,
		rooms:    rooms,
		cast:     cast,
		sessions: sessions,
		tracker:  tracker,
		pacer:    pacer,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Connect moves a user into a channel. If the user currently occupies a
// different channel, every leave-side effect on the old room is emitted
// before any join-side effect on the new one; the voice-mode info message
// comes last. The presence start hook fires only on the Absent→Occupying
// transition.
func (sm *ChannelStateMachine) Connect(ctx context.Context, user *model.User, member *model.Member,
	server *model.Server, channel *model.Channel) error {

	conn := sm.sessions.Lookup(user.ID)
	prev := user.CurrentChannelID
	wasAbsent := prev == ""

	if prev != "" && prev != channel.ID {
		sm.rooms.Leave(channelRoom(prev), conn)
		sm.cast.ToRoom(channelRoom(prev), Event{Type: EventPlaySound, Data: SoundCue{Sound: "leave"}})
		sm.cast.ToRoom(channelRoom(prev), Event{Type: EventRTCLeave, Data: RTCPeer{UserID: user.ID, ChannelID: prev}})
	}

	sm.rooms.Join(serverRoom(server.ID), conn)
	sm.rooms.Join(channelRoom(channel.ID), conn)
	sm.cast.ToRoom(channelRoom(channel.ID), Event{Type: EventPlaySound, Data: SoundCue{Sound: "join"}})
	sm.cast.ToRoom(channelRoom(channel.ID), Event{Type: EventRTCJoin, Data: RTCPeer{UserID: user.ID, ChannelID: channel.ID}})
	sm.cast.ToRoom(channelRoom(channel.ID), Event{Type: EventChannelMessage, Data: ChannelMessage{
		Type:      "info",
		ChannelID: channel.ID,
		Content:   voiceModeKey(channel.VoiceMode),
	}})

	now := sm.now()
	user.CurrentChannelID = channel.ID
	user.CurrentServerID = server.ID
	user.LastActiveAt = now
	if err := sm.store.SetUser(ctx, user); err != nil {
		return fmt.Errorf("connect: persist user: %w", err)
	}

	if member == nil {
		member = &model.Member{
			UserID:          user.ID,
			ServerID:        server.ID,
			PermissionLevel: model.PermissionGuest,
		}
	}
	member.LastJoinChannelAt = now
	if err := sm.store.SetMember(ctx, member); err != nil {
		return fmt.Errorf("connect: persist member: %w", err)
	}

	sm.cast.ToUser(user.ID, Event{Type: EventUserUpdated, Data: user})
	if err := sm.broadcastMembers(ctx, server.ID); err != nil {
		return err
	}

	if wasAbsent {
		sm.tracker.Start(user.ID)
	}
	return nil
}

// Disconnect moves a user out of their channel entirely and clears the
// persisted channel/server association. Mirrors Connect's leave sequence
// and fires the presence stop hook.
func (sm *ChannelStateMachine) Disconnect(ctx context.Context, user *model.User, server *model.Server) error {
	conn := sm.sessions.Lookup(user.ID)
	prev := user.CurrentChannelID

	if prev != "" {
		sm.rooms.Leave(channelRoom(prev), conn)
		sm.cast.ToRoom(channelRoom(prev), Event{Type: EventPlaySound, Data: SoundCue{Sound: "leave"}})
		sm.cast.ToRoom(channelRoom(prev), Event{Type: EventRTCLeave, Data: RTCPeer{UserID: user.ID, ChannelID: prev}})
		sm.tracker.Stop(user.ID)
	}

	user.CurrentChannelID = ""
	user.CurrentServerID = ""
	user.LastActiveAt = sm.now()
	if err := sm.store.SetUser(ctx, user); err != nil {
		return fmt.Errorf("disconnect: persist user: %w", err)
	}

	sm.cast.ToUser(user.ID, Event{Type: EventUserUpdated, Data: user})
	if err := sm.broadcastMembers(ctx, server.ID); err != nil {
		return err
	}
	sm.rooms.Leave(serverRoom(server.ID), conn)
	return nil
}

// Create inserts a new channel under an optional parent category. A parent
// that is still a plain channel is promoted to a category first; a parent
// that is itself a sub-channel is rejected.
func (sm *ChannelStateMachine) Create(ctx context.Context, p CreateChannelPayload) (*model.Channel, error) {
	var parent *model.Channel
	if p.CategoryID != "" {
		var err error
		parent, err = sm.store.GetChannel(ctx, p.CategoryID)
		if err != nil {
			return nil, newOpError(MsgServerError, "CREATE_CHANNEL", err)
		}
		if parent == nil {
			return nil, newOpError(MsgServerError, "CREATE_CHANNEL", fmt.Errorf("parent category %q not found", p.CategoryID))
		}
		if parent.CategoryID != "" {
			return nil, newOpError(MsgServerError, "CREATE_CHANNEL",
				fmt.Errorf("channel %q is a sub-channel and cannot hold children", parent.ID))
		}
	}

	siblings, err := sm.siblingsIn(ctx, p.ServerID, p.CategoryID)
	if err != nil {
		return nil, newOpError(MsgServerError, "CREATE_CHANNEL", err)
	}
	order := len(siblings) - 1
	if order < 0 {
		order = 0
	}

	// A first child turns its parent into a category.
	if parent != nil && parent.Type == model.TypeChannel {
		category := model.TypeCategory
		if err := sm.Update(ctx, parent.ID, model.ChannelPatch{Type: &category}); err != nil {
			return nil, err
		}
	}

	channel := model.NewChannel(p.ServerID, p.Name)
	channel.ID = uuid.NewString()
	channel.CategoryID = p.CategoryID
	channel.Order = order
	if p.Visibility != "" {
		channel.Visibility = p.Visibility
	}
	if p.VoiceMode != "" {
		channel.VoiceMode = p.VoiceMode
	}
	channel.UserLimit = p.UserLimit
	if p.Password != "" {
		hash, err := auth.HashChannelPassword(p.Password)
		if err != nil {
			return nil, newOpError(MsgServerError, "CREATE_CHANNEL", err)
		}
		channel.Password = hash
	}

	if err := sm.store.CreateChannel(ctx, channel); err != nil {
		return nil, newOpError(MsgServerError, "CREATE_CHANNEL", err)
	}
	sm.metrics.ChannelsCreated.Add(1)

	sm.cast.ToRoom(serverRoom(p.ServerID), Event{Type: EventChannelAdded, Data: channel})
	return channel, nil
}

// Update patches a channel. Persistence always happens, even for a no-op
// patch; diff-driven system messages go to the channel's own room only for
// fields that actually changed.
func (sm *ChannelStateMachine) Update(ctx context.Context, channelID string, patch model.ChannelPatch) error {
	channel, err := sm.store.GetChannel(ctx, channelID)
	if err != nil {
		return newOpError(MsgServerError, "UPDATE_CHANNEL", err)
	}
	if channel == nil {
		return newOpError(MsgServerError, "UPDATE_CHANNEL", fmt.Errorf("channel %q not found", channelID))
	}

	// The lobby keeps its open-door guarantees.
	if channel.IsLobby {
		if patch.UserLimit != nil && *patch.UserLimit != 0 {
			return newOpError(MsgServerError, "UPDATE_CHANNEL", fmt.Errorf("lobby cannot have a user limit"))
		}
		if patch.Visibility != nil && *patch.Visibility != model.ChannelPublic {
			return newOpError(MsgServerError, "UPDATE_CHANNEL", fmt.Errorf("lobby must stay public"))
		}
	}

	if patch.Password != nil && *patch.Password != "" {
		hash, err := auth.HashChannelPassword(*patch.Password)
		if err != nil {
			return newOpError(MsgServerError, "UPDATE_CHANNEL", err)
		}
		patch.Password = &hash
	}

	messages := diffMessages(channel, &patch)

	patch.Apply(channel)
	if err := sm.store.SetChannel(ctx, channel); err != nil {
		return newOpError(MsgServerError, "UPDATE_CHANNEL", err)
	}
	sm.metrics.ChannelsUpdated.Add(1)

	sm.cast.ToRoom(serverRoom(channel.ServerID), Event{Type: EventChannelUpdated, Data: channel})
	for _, msg := range messages {
		sm.cast.ToRoom(channelRoom(channel.ID), Event{Type: EventChannelMessage, Data: msg})
	}
	return nil
}

// BatchUpdate applies updates sequentially with inter-item pacing. It is
// explicitly non-atomic: the first failing update aborts the rest while
// earlier updates stay committed.
func (sm *ChannelStateMachine) BatchUpdate(ctx context.Context, items []UpdateChannelPayload) error {
	for i, item := range items {
		if i > 0 {
			sm.pacer.Pace(ctx)
		}
		if err := sm.Update(ctx, item.ChannelID, item.Patch); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a channel and cascades: the parent category is demoted if
// this was its last child, children are deleted depth-first, occupants are
// relocated to the server lobby, then the row goes away. Sub-steps are
// paced; missing parent or server records degrade that sub-step to a no-op.
func (sm *ChannelStateMachine) Delete(ctx context.Context, channelID string) error {
	channel, err := sm.store.GetChannel(ctx, channelID)
	if err != nil {
		return newOpError(MsgServerError, "DELETE_CHANNEL", err)
	}
	if channel == nil {
		return nil
	}
	if channel.IsLobby {
		return newOpError(MsgServerError, "DELETE_CHANNEL", fmt.Errorf("lobby channel cannot be deleted"))
	}

	// Demote the parent back to a plain channel when this is its last child.
	if channel.CategoryID != "" {
		parent, err := sm.store.GetChannel(ctx, channel.CategoryID)
		if err != nil {
			return newOpError(MsgServerError, "DELETE_CHANNEL", err)
		}
		if parent != nil {
			siblings, err := sm.siblingsIn(ctx, channel.ServerID, parent.ID)
			if err != nil {
				return newOpError(MsgServerError, "DELETE_CHANNEL", err)
			}
			if len(siblings) == 1 {
				plain := model.TypeChannel
				if err := sm.Update(ctx, parent.ID, model.ChannelPatch{Type: &plain}); err != nil {
					return err
				}
			}
		}
	}

	// Children go depth-first.
	children, err := sm.siblingsIn(ctx, channel.ServerID, channel.ID)
	if err != nil {
		return newOpError(MsgServerError, "DELETE_CHANNEL", err)
	}
	for _, child := range children {
		sm.pacer.Pace(ctx)
		if err := sm.Delete(ctx, child.ID); err != nil {
			return err
		}
	}

	// Occupants fall back to the server lobby, in their original order.
	occupants, err := sm.store.ListChannelUsers(ctx, channel.ID)
	if err != nil {
		return newOpError(MsgServerError, "DELETE_CHANNEL", err)
	}
	if len(occupants) > 0 {
		server, err := sm.store.GetServer(ctx, channel.ServerID)
		if err != nil {
			return newOpError(MsgServerError, "DELETE_CHANNEL", err)
		}
		var lobby *model.Channel
		if server != nil {
			lobby, err = sm.store.GetChannel(ctx, server.LobbyID)
			if err != nil {
				return newOpError(MsgServerError, "DELETE_CHANNEL", err)
			}
		}
		if server != nil && lobby != nil {
			for i := range occupants {
				occupant := occupants[i]
				sm.pacer.Pace(ctx)
				member, err := sm.store.GetMember(ctx, occupant.ID, server.ID)
				if err != nil {
					return newOpError(MsgServerError, "DELETE_CHANNEL", err)
				}
				if err := sm.Connect(ctx, &occupant, member, server, lobby); err != nil {
					return err
				}
			}
		}
	}

	if err := sm.store.DeleteChannel(ctx, channel.ID); err != nil {
		return newOpError(MsgServerError, "DELETE_CHANNEL", err)
	}
	sm.metrics.ChannelsDeleted.Add(1)

	sm.cast.ToRoom(serverRoom(channel.ServerID), Event{Type: EventChannelDeleted, Data: ChannelDeleted{
		ChannelID: channel.ID,
		ServerID:  channel.ServerID,
	}})
	return nil
}

// siblingsIn returns the channels in the (serverID, categoryID) partition.
func (sm *ChannelStateMachine) siblingsIn(ctx context.Context, serverID, categoryID string) ([]model.Channel, error) {
	channels, err := sm.store.ListServerChannels(ctx, serverID)
	if err != nil {
		return nil, err
	}
	var siblings []model.Channel
	for _, ch := range channels {
		if ch.CategoryID == categoryID {
			siblings = append(siblings, ch)
		}
	}
	return siblings, nil
}

// broadcastMembers emits the server-wide membership update.
func (sm *ChannelStateMachine) broadcastMembers(ctx context.Context, serverID string) error {
	members, err := sm.store.ListServerMembers(ctx, serverID)
	if err != nil {
		return fmt.Errorf("broadcast members: %w", err)
	}
	sm.cast.ToRoom(serverRoom(serverID), Event{Type: EventServerMembersUpdated, Data: members})
	return nil
}

// voiceModeKey maps a channel's voice mode to the info message shown to a
// joining user.
func voiceModeKey(mode model.VoiceMode) string {
	switch mode {
	case model.VoiceQueue:
		return MsgChannelModeQueue
	case model.VoiceForbidden:
		return MsgChannelModeForbidden
	default:
		return MsgChannelModeFree
	}
}

// diffMessages composes one system message per observable field the patch
// actually changes. A patch equal to the stored values yields none.
func diffMessages(channel *model.Channel, patch *model.ChannelPatch) []ChannelMessage {
	var messages []ChannelMessage
	add := func(content, arg string) {
		messages = append(messages, ChannelMessage{
			Type:      "info",
			ChannelID: channel.ID,
			Content:   content,
			Arg:       arg,
		})
	}

	if patch.VoiceMode != nil && *patch.VoiceMode != channel.VoiceMode {
		switch *patch.VoiceMode {
		case model.VoiceFree:
			add(MsgVoiceChangeToFree, "")
		case model.VoiceQueue:
			add(MsgVoiceChangeToQueue, "")
		case model.VoiceForbidden:
			add(MsgVoiceChangeToForbidden, "")
		}
	}
	if patch.ForbidText != nil && *patch.ForbidText != channel.ForbidText {
		if *patch.ForbidText {
			add(MsgTextChangeToForbidden, "")
		} else {
			add(MsgTextChangeToFree, "")
		}
	}
	if patch.ForbidGuestText != nil && *patch.ForbidGuestText != channel.ForbidGuestText {
		if *patch.ForbidGuestText {
			add(MsgGuestTextForbidden, "")
		} else {
			add(MsgGuestTextAllowed, "")
		}
	}
	if patch.ForbidGuestURL != nil && *patch.ForbidGuestURL != channel.ForbidGuestURL {
		if *patch.ForbidGuestURL {
			add(MsgGuestURLForbidden, "")
		} else {
			add(MsgGuestURLAllowed, "")
		}
	}
	if patch.GuestTextMaxLength != nil && *patch.GuestTextMaxLength != channel.GuestTextMaxLength {
		add(MsgGuestTextMaxLength, strconv.Itoa(*patch.GuestTextMaxLength))
	}
	if patch.GuestTextWaitTime != nil && *patch.GuestTextWaitTime != channel.GuestTextWaitTime {
		add(MsgGuestTextWaitTime, strconv.Itoa(*patch.GuestTextWaitTime))
	}
	if patch.GuestTextGapTime != nil && *patch.GuestTextGapTime != channel.GuestTextGapTime {
		add(MsgGuestTextGapTime, strconv.Itoa(*patch.GuestTextGapTime))
	}
	return messages
}
