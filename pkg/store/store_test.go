package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/NerdyHomeReOpen/RiceCall-sub001/pkg/model"
)

// eachStore runs a subtest against both DataStore implementations so their
// semantics cannot drift apart.
func eachStore(t *testing.T, fn func(t *testing.T, st DataStore)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})

	t.Run("sqlite", func(t *testing.T) {
		st, err := New(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		fn(t, st)
	})
}

func TestUserCRUD(t *testing.T) {
	eachStore(t, func(t *testing.T, st DataStore) {
		ctx := context.Background()

		user := &model.User{ID: "u1", Name: "alice"}
		if err := st.CreateUser(ctx, user); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		if err := st.CreateUser(ctx, &model.User{ID: "u1", Name: "dup"}); err == nil {
			t.Fatal("CreateUser: duplicate ID accepted")
		}

		got, err := st.GetUser(ctx, "u1")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if diff := cmp.Diff(user, got, cmpopts.IgnoreFields(model.User{}, "CreatedAt")); diff != "" {
			t.Fatalf("GetUser mismatch (-want +got):\n%s", diff)
		}

		got.CurrentServerID = "srv"
		got.CurrentChannelID = "chan"
		got.LastActiveAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		if err := st.SetUser(ctx, got); err != nil {
			t.Fatalf("SetUser: %v", err)
		}

		again, err := st.GetUser(ctx, "u1")
		if err != nil {
			t.Fatalf("GetUser after update: %v", err)
		}
		if diff := cmp.Diff(got, again, cmpopts.IgnoreFields(model.User{}, "CreatedAt")); diff != "" {
			t.Fatalf("updated user mismatch (-want +got):\n%s", diff)
		}

		missing, err := st.GetUser(ctx, "nope")
		if err != nil || missing != nil {
			t.Fatalf("GetUser missing: got (%v, %v), want (nil, nil)", missing, err)
		}
	})
}

func TestServerCRUD(t *testing.T) {
	eachStore(t, func(t *testing.T, st DataStore) {
		ctx := context.Background()

		server := &model.Server{
			ID: "s1", Name: "RiceCall", OwnerID: "u1",
			LobbyID: "lobby", ReceptionLobbyID: "lobby",
			Visibility: model.ServerPublic,
		}
		if err := st.CreateServer(ctx, server); err != nil {
			t.Fatalf("CreateServer: %v", err)
		}

		got, err := st.GetServer(ctx, "s1")
		if err != nil {
			t.Fatalf("GetServer: %v", err)
		}
		if diff := cmp.Diff(server, got, cmpopts.IgnoreFields(model.Server{}, "CreatedAt")); diff != "" {
			t.Fatalf("GetServer mismatch (-want +got):\n%s", diff)
		}

		got.Visibility = model.ServerPrivate
		if err := st.SetServer(ctx, got); err != nil {
			t.Fatalf("SetServer: %v", err)
		}
		again, _ := st.GetServer(ctx, "s1")
		if again.Visibility != model.ServerPrivate {
			t.Fatalf("SetServer: visibility=%q want=private", again.Visibility)
		}

		servers, err := st.ListServers(ctx)
		if err != nil {
			t.Fatalf("ListServers: %v", err)
		}
		if len(servers) != 1 || servers[0].ID != "s1" {
			t.Fatalf("ListServers: got %v", servers)
		}
	})
}

func TestChannelCRUDAndOrdering(t *testing.T) {
	eachStore(t, func(t *testing.T, st DataStore) {
		ctx := context.Background()

		mk := func(id, categoryID string, order int) *model.Channel {
			ch := model.NewChannel("s1", "room "+id)
			ch.ID = id
			ch.CategoryID = categoryID
			ch.Order = order
			return ch
		}

		// Insert out of order; the listing must come back sorted by
		// (category, order, id).
		for _, ch := range []*model.Channel{
			mk("c3", "cat", 1),
			mk("c1", "", 0),
			mk("c2", "cat", 0),
			mk("c4", "", 1),
		} {
			if err := st.CreateChannel(ctx, ch); err != nil {
				t.Fatalf("CreateChannel %s: %v", ch.ID, err)
			}
		}

		channels, err := st.ListServerChannels(ctx, "s1")
		if err != nil {
			t.Fatalf("ListServerChannels: %v", err)
		}
		var ids []string
		for _, ch := range channels {
			ids = append(ids, ch.ID)
		}
		want := []string{"c1", "c4", "c2", "c3"}
		if diff := cmp.Diff(want, ids); diff != "" {
			t.Fatalf("channel order mismatch (-want +got):\n%s", diff)
		}

		// Update round-trips every field.
		ch := channels[0]
		ch.Name = "renamed"
		ch.VoiceMode = model.VoiceQueue
		ch.UserLimit = 8
		ch.ForbidGuestText = true
		ch.GuestTextWaitTime = 30
		if err := st.SetChannel(ctx, &ch); err != nil {
			t.Fatalf("SetChannel: %v", err)
		}
		got, err := st.GetChannel(ctx, ch.ID)
		if err != nil {
			t.Fatalf("GetChannel: %v", err)
		}
		if diff := cmp.Diff(&ch, got, cmpopts.IgnoreFields(model.Channel{}, "CreatedAt")); diff != "" {
			t.Fatalf("SetChannel mismatch (-want +got):\n%s", diff)
		}

		// Invalid channels never reach the database.
		bad := mk("c9", "", 0)
		bad.Name = ""
		if err := st.CreateChannel(ctx, bad); err == nil {
			t.Fatal("CreateChannel: empty name accepted")
		}

		if err := st.DeleteChannel(ctx, "c1"); err != nil {
			t.Fatalf("DeleteChannel: %v", err)
		}
		gone, err := st.GetChannel(ctx, "c1")
		if err != nil || gone != nil {
			t.Fatalf("GetChannel after delete: got (%v, %v), want (nil, nil)", gone, err)
		}
	})
}

func TestMemberUpsert(t *testing.T) {
	eachStore(t, func(t *testing.T, st DataStore) {
		ctx := context.Background()

		member := &model.Member{UserID: "u1", ServerID: "s1", PermissionLevel: model.PermissionMember}
		if err := st.SetMember(ctx, member); err != nil {
			t.Fatalf("SetMember: %v", err)
		}

		// Second set with the same key updates in place.
		member.PermissionLevel = model.PermissionServerAdmin
		member.LastJoinChannelAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		if err := st.SetMember(ctx, member); err != nil {
			t.Fatalf("SetMember upsert: %v", err)
		}

		got, err := st.GetMember(ctx, "u1", "s1")
		if err != nil {
			t.Fatalf("GetMember: %v", err)
		}
		if diff := cmp.Diff(member, got, cmpopts.IgnoreFields(model.Member{}, "CreatedAt")); diff != "" {
			t.Fatalf("GetMember mismatch (-want +got):\n%s", diff)
		}

		if err := st.SetMember(ctx, &model.Member{UserID: "u2", ServerID: "s1", PermissionLevel: 9}); err == nil {
			t.Fatal("SetMember: out-of-range level accepted")
		}

		missing, err := st.GetMember(ctx, "u9", "s1")
		if err != nil || missing != nil {
			t.Fatalf("GetMember missing: got (%v, %v), want (nil, nil)", missing, err)
		}

		if err := st.SetMember(ctx, &model.Member{UserID: "u0", ServerID: "s1", PermissionLevel: model.PermissionGuest}); err != nil {
			t.Fatalf("SetMember second user: %v", err)
		}
		members, err := st.ListServerMembers(ctx, "s1")
		if err != nil {
			t.Fatalf("ListServerMembers: %v", err)
		}
		if len(members) != 2 || members[0].UserID != "u0" || members[1].UserID != "u1" {
			t.Fatalf("ListServerMembers: got %v", members)
		}
	})
}

func TestChannelOccupancy(t *testing.T) {
	eachStore(t, func(t *testing.T, st DataStore) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		// Occupants list in join order (last_active_at, then id).
		users := []*model.User{
			{ID: "b", Name: "second", CurrentChannelID: "chan", LastActiveAt: base.Add(time.Minute)},
			{ID: "a", Name: "first", CurrentChannelID: "chan", LastActiveAt: base},
			{ID: "c", Name: "tied", CurrentChannelID: "chan", LastActiveAt: base.Add(time.Minute)},
			{ID: "d", Name: "elsewhere", CurrentChannelID: "other", LastActiveAt: base},
		}
		for _, u := range users {
			if err := st.CreateUser(ctx, u); err != nil {
				t.Fatalf("CreateUser %s: %v", u.ID, err)
			}
		}

		occupants, err := st.ListChannelUsers(ctx, "chan")
		if err != nil {
			t.Fatalf("ListChannelUsers: %v", err)
		}
		var ids []string
		for _, u := range occupants {
			ids = append(ids, u.ID)
		}
		if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
			t.Fatalf("occupant order mismatch (-want +got):\n%s", diff)
		}

		count, err := st.CountChannelUsers(ctx, "chan")
		if err != nil {
			t.Fatalf("CountChannelUsers: %v", err)
		}
		if count != 3 {
			t.Fatalf("CountChannelUsers: got %d want 3", count)
		}

		empty, err := st.CountChannelUsers(ctx, "nowhere")
		if err != nil || empty != 0 {
			t.Fatalf("CountChannelUsers empty: got (%d, %v)", empty, err)
		}
	})
}
