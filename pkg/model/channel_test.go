package model

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewChannelDefaults(t *testing.T) {
	ch := NewChannel("srv", "general")
	if ch.Type != TypeChannel {
		t.Fatalf("NewChannel: type=%q want=%q", ch.Type, TypeChannel)
	}
	if ch.Visibility != ChannelPublic {
		t.Fatalf("NewChannel: visibility=%q want=%q", ch.Visibility, ChannelPublic)
	}
	if ch.VoiceMode != VoiceFree {
		t.Fatalf("NewChannel: voice mode=%q want=%q", ch.VoiceMode, VoiceFree)
	}
	if ch.UserLimit != 0 {
		t.Fatalf("NewChannel: user limit=%d want=0", ch.UserLimit)
	}
	if err := ch.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestChannelValidate(t *testing.T) {
	type tcase struct {
		mut     func(*Channel)
		wantErr error
	}

	tcases := map[string]tcase{
		"valid":           {mut: nil, wantErr: nil},
		"empty name":      {mut: func(ch *Channel) { ch.Name = "  " }, wantErr: ErrChannelNameEmpty},
		"name too long":   {mut: func(ch *Channel) { ch.Name = strings.Repeat("x", 65) }, wantErr: ErrChannelNameTooLong},
		"bad type":        {mut: func(ch *Channel) { ch.Type = "group" }, wantErr: ErrInvalidChannelType},
		"bad visibility":  {mut: func(ch *Channel) { ch.Visibility = "hidden" }, wantErr: ErrInvalidVisibility},
		"bad voice mode":  {mut: func(ch *Channel) { ch.VoiceMode = "push" }, wantErr: ErrInvalidVoiceMode},
		"negative limit":  {mut: func(ch *Channel) { ch.UserLimit = -1 }, wantErr: ErrChannelUserLimit},
		"limit too large": {mut: func(ch *Channel) { ch.UserLimit = 1000 }, wantErr: ErrChannelUserLimit},
		"negative order":  {mut: func(ch *Channel) { ch.Order = -1 }, wantErr: ErrChannelOrder},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			ch := NewChannel("srv", "general")
			if tc.mut != nil {
				tc.mut(ch)
			}
			if err := ch.Validate(); err != tc.wantErr {
				t.Fatalf("Validate: err=%v want=%v", err, tc.wantErr)
			}
		})
	}
}

func TestChannelPatchApply(t *testing.T) {
	ch := NewChannel("srv", "general")
	ch.ID = "chan"

	name := "renamed"
	limit := 8
	mode := VoiceQueue
	forbid := true

	patch := ChannelPatch{
		Name:       &name,
		UserLimit:  &limit,
		VoiceMode:  &mode,
		ForbidText: &forbid,
	}
	patch.Apply(ch)

	want := NewChannel("srv", "renamed")
	want.ID = "chan"
	want.UserLimit = 8
	want.VoiceMode = VoiceQueue
	want.ForbidText = true

	if diff := cmp.Diff(want, ch); diff != "" {
		t.Fatalf("Apply mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelPatchApplyEmpty(t *testing.T) {
	ch := NewChannel("srv", "general")
	ch.UserLimit = 5

	before := *ch
	(&ChannelPatch{}).Apply(ch)

	if diff := cmp.Diff(&before, ch); diff != "" {
		t.Fatalf("empty patch changed channel (-want +got):\n%s", diff)
	}
}

func TestPermissionLevelValid(t *testing.T) {
	for lvl := PermissionGuest; lvl <= PermissionOwner; lvl++ {
		if !lvl.Valid() {
			t.Fatalf("level %d should be valid", lvl)
		}
	}
	if PermissionLevel(0).Valid() || PermissionLevel(7).Valid() {
		t.Fatal("out-of-range level reported valid")
	}
}
