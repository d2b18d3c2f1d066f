// Package rbac provides the pure permission rules gating channel actions.
//
// Rules are evaluated in a fixed order and the first failing rule wins; its
// reason is the only one callers log. A Denied decision is expected control
// flow, not an error.
package rbac

import "github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"

// Decision is the outcome of a guard check: Allow, or Deny with the first
// failing reason. The tagged form keeps "intentional no-op" distinct from a
// forgotten emission.
type Decision struct {
	allowed bool
	reason  string
}

// Allow returns an allowed decision.
func Allow() Decision {
	return Decision{allowed: true}
}

// Deny returns a denied decision carrying the failing rule's reason.
func Deny(reason string) Decision {
	return Decision{reason: reason}
}

// Allowed reports whether the action may proceed.
func (d Decision) Allowed() bool {
	return d.allowed
}

// Reason returns the first failing rule's reason, or "" when allowed.
func (d Decision) Reason() string {
	return d.reason
}

// Denial reasons, logged verbatim on rejection.
const (
	ReasonWrongPassword      = "wrong password"
	ReasonServerVisibility   = "blocked by server visibility"
	ReasonChannelVisibility  = "blocked by channel visibility"
	ReasonChannelFull        = "channel is full"
	ReasonChannelReadonly    = "channel is readonly"
	ReasonNotEnoughPerm      = "not enough permission"
	ReasonTargetOutranks     = "permission not higher than target"
	ReasonTargetNotInServer  = "target not in server"
	ReasonTargetAlreadyThere = "target already in channel"
)

// JoinFacts is the fact set for a user joining a channel on their own behalf.
// PasswordOK is precomputed by the caller; hash comparison lives with the
// credential code, not in the rules.
type JoinFacts struct {
	Server     *model.Server
	Channel    *model.Channel
	ActorLevel model.PermissionLevel
	Occupancy  int
	PasswordOK bool
}

// CheckSelfJoin evaluates the self-join rules in order.
//
// Rejoining the channel the actor already occupies is deliberately not
// checked here; only the move-other path guards against it. Kept as-is until
// product confirms the intended behavior.
func CheckSelfJoin(f JoinFacts) Decision {
	ch := f.Channel

	if ch.Password != "" && !f.PasswordOK && f.ActorLevel < model.PermissionChannelAdmin {
		return Deny(ReasonWrongPassword)
	}
	// The lobby is exempt from server visibility.
	if !ch.IsLobby && f.Server.Visibility == model.ServerPrivate && f.ActorLevel < model.PermissionMember {
		return Deny(ReasonServerVisibility)
	}
	if ch.Visibility == model.ChannelMember && f.ActorLevel < model.PermissionMember {
		return Deny(ReasonChannelVisibility)
	}
	if ch.UserLimit > 0 && f.Occupancy >= ch.UserLimit && f.ActorLevel < model.PermissionServerAdmin {
		return Deny(ReasonChannelFull)
	}
	if ch.Visibility == model.ChannelReadonly {
		return Deny(ReasonChannelReadonly)
	}
	return Allow()
}

// MoveFacts is the fact set for an actor moving another user.
type MoveFacts struct {
	ActorLevel      model.PermissionLevel
	TargetLevel     model.PermissionLevel
	ServerID        string
	TargetServerID  string
	TargetChannelID string
	DestChannelID   string
}

// CheckMoveOther evaluates the move-another-user rules in order.
//
// The second rule uses "<=": equal levels are allowed to move each other.
// A differently-shaped bound exists in the member-update path elsewhere in
// the product; the mismatch is known, do not unify without sign-off.
func CheckMoveOther(f MoveFacts) Decision {
	if f.ActorLevel < model.PermissionServerAdmin {
		return Deny(ReasonNotEnoughPerm)
	}
	if f.ActorLevel < f.TargetLevel {
		return Deny(ReasonTargetOutranks)
	}
	if f.TargetServerID != f.ServerID {
		return Deny(ReasonTargetNotInServer)
	}
	if f.TargetChannelID == f.DestChannelID {
		return Deny(ReasonTargetAlreadyThere)
	}
	return Allow()
}

// RequireLevel gates structural channel mutations (create, update, delete):
// the actor must hold at least the given level in the server.
func RequireLevel(actor, min model.PermissionLevel) Decision {
	if actor < min {
		return Deny(ReasonNotEnoughPerm)
	}
	return Allow()
}
