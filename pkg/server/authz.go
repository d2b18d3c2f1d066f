package server

import (
	"context"
	"fmt"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/auth"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/rbac"
	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/store"
)

// AuthorizationContext loads the minimal fact set a guard decision needs.
// It performs reads only; rule evaluation lives in pkg/rbac and has no side
// effects, so a denial leaves no trace beyond a warning log.
type AuthorizationContext struct {
	store store.DataStore
}

// NewAuthorizationContext creates a fact loader over the given store.
func NewAuthorizationContext(st store.DataStore) *AuthorizationContext {
	return &AuthorizationContext{store: st}
}

// JoinContext is the loaded fact set for one connect decision plus the
// records the state machine mutates afterwards.
type JoinContext struct {
	Actor        *model.User
	Target       *model.User
	ActorMember  *model.Member // nil = guest
	TargetMember *model.Member // nil = guest
	Server       *model.Server
	Channel      *model.Channel
	Occupancy    int
}

// levelOf maps a possibly missing membership to its effective level:
// users without a member record act as guests.
func levelOf(m *model.Member) model.PermissionLevel {
	if m == nil {
		return model.PermissionGuest
	}
	return m.PermissionLevel
}

// LoadJoin gathers actor, target, server, channel, memberships, and
// occupancy for a connect decision.
func (a *AuthorizationContext) LoadJoin(ctx context.Context, actorID, userID, channelID, serverID string) (*JoinContext, error) {
	actor, err := a.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, fmt.Errorf("actor %q not found", actorID)
	}

	target := actor
	if userID != actorID {
		target, err = a.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, fmt.Errorf("user %q not found", userID)
		}
	}

	server, err := a.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, fmt.Errorf("server %q not found", serverID)
	}

	channel, err := a.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, fmt.Errorf("channel %q not found", channelID)
	}

	actorMember, err := a.store.GetMember(ctx, actorID, serverID)
	if err != nil {
		return nil, err
	}
	targetMember := actorMember
	if userID != actorID {
		targetMember, err = a.store.GetMember(ctx, userID, serverID)
		if err != nil {
			return nil, err
		}
	}

	occupancy, err := a.store.CountChannelUsers(ctx, channelID)
	if err != nil {
		return nil, err
	}

	return &JoinContext{
		Actor:        actor,
		Target:       target,
		ActorMember:  actorMember,
		TargetMember: targetMember,
		Server:       server,
		Channel:      channel,
		Occupancy:    occupancy,
	}, nil
}

// Decide runs the guard over the loaded facts. Self-join and
// actor-moves-other evaluate different rule lists.
func (jc *JoinContext) Decide(password string) rbac.Decision {
	if jc.Actor.ID == jc.Target.ID {
		return rbac.CheckSelfJoin(rbac.JoinFacts{
			Server:     jc.Server,
			Channel:    jc.Channel,
			ActorLevel: levelOf(jc.ActorMember),
			Occupancy:  jc.Occupancy,
			PasswordOK: auth.CheckChannelPassword(jc.Channel.Password, password),
		})
	}
	return rbac.CheckMoveOther(rbac.MoveFacts{
		ActorLevel:      levelOf(jc.ActorMember),
		TargetLevel:     levelOf(jc.TargetMember),
		ServerID:        jc.Server.ID,
		TargetServerID:  jc.Target.CurrentServerID,
		TargetChannelID: jc.Target.CurrentChannelID,
		DestChannelID:   jc.Channel.ID,
	})
}

// ActorLevel loads the actor's effective permission level in a server.
// Used to gate structural channel mutations.
func (a *AuthorizationContext) ActorLevel(ctx context.Context, actorID, serverID string) (model.PermissionLevel, error) {
	member, err := a.store.GetMember(ctx, actorID, serverID)
	if err != nil {
		return 0, err
	}
	return levelOf(member), nil
}
