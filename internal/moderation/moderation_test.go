package moderation

import (
	"path/filepath"
	"testing"

	"relay/internal/bus"
	"relay/internal/db"
	"relay/internal/models"
	"relay/internal/ratelimit"
	"relay/internal/session"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	return database
}

func testService(t *testing.T) (*Service, *db.DB, *bus.Bus) {
	t.Helper()

	database := openTestDB(t)
	eventBus := bus.New()
	svc := NewService(
		db.NewUserRepository(database),
		db.NewModerationRepository(database),
		session.NewRegistry(),
		eventBus,
		ratelimit.NewPolicy(),
		ratelimit.NewLimiter(),
	)
	return svc, database, eventBus
}

func createTestUser(t *testing.T, database *db.DB, username string, role models.Role) *models.User {
	t.Helper()

	users := db.NewUserRepository(database)
	user, err := users.Create(username, username+"@example.com", "hashed", role)
	if err != nil {
		t.Fatalf("creating test user %q: %v", username, err)
	}
	return user
}

func subscribeEvents(eventBus *bus.Bus) *[]bus.Event {
	var got []bus.Event
	eventBus.Subscribe(func(_ bus.Target, evt bus.Event) {
		got = append(got, evt)
	})
	return &got
}

func TestKickRequiresModeratorOrAboveAndOutrankingTarget(t *testing.T) {
	svc, database, _ := testService(t)
	member := createTestUser(t, database, "member", models.RoleMember)
	target := createTestUser(t, database, "target", models.RoleMember)

	if err := svc.Kick(Actor{UserID: member.ID, Role: member.Role}, target.ID, "spam"); err == nil {
		t.Fatal("expected a plain member to be forbidden from kicking")
	}

	moderator := createTestUser(t, database, "mod", models.RoleModerator)
	if err := svc.Kick(Actor{UserID: moderator.ID, Role: moderator.Role}, target.ID, "spam"); err != nil {
		t.Fatalf("expected a moderator to kick a member, got %v", err)
	}
}

func TestKickCannotOutrankEqualOrHigherRole(t *testing.T) {
	svc, database, _ := testService(t)
	modA := createTestUser(t, database, "mod-a", models.RoleModerator)
	modB := createTestUser(t, database, "mod-b", models.RoleModerator)

	if err := svc.Kick(Actor{UserID: modA.ID, Role: modA.Role}, modB.ID, "clash"); err == nil {
		t.Fatal("expected strict rank check to forbid kicking an equal-rank peer")
	}
}

func TestKickDisconnectsLiveSessionsAndPublishes(t *testing.T) {
	svc, database, eventBus := testService(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	target := createTestUser(t, database, "target", models.RoleMember)
	events := subscribeEvents(eventBus)

	if err := svc.Kick(Actor{UserID: admin.ID, Role: admin.Role}, target.ID, "spam"); err != nil {
		t.Fatalf("Kick: %v", err)
	}

	if len(*events) != 1 || (*events)[0].Name != "USER_KICKED" {
		t.Fatalf("expected a single USER_KICKED event, got %+v", *events)
	}
}

func TestBanThenUnban(t *testing.T) {
	svc, database, _ := testService(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	target := createTestUser(t, database, "target", models.RoleMember)

	ban, err := svc.Ban(Actor{UserID: admin.ID, Role: admin.Role}, target.ID, "abuse", nil)
	if err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if ban.UserID != target.ID {
		t.Fatalf("expected ban for %q, got %q", target.ID, ban.UserID)
	}

	moderationRepo := db.NewModerationRepository(database)
	active, err := moderationRepo.ActiveBan(target.ID)
	if err != nil {
		t.Fatalf("ActiveBan: %v", err)
	}
	if active == nil {
		t.Fatal("expected an active ban after Ban()")
	}

	if err := svc.Unban(Actor{UserID: admin.ID, Role: admin.Role}, target.ID); err != nil {
		t.Fatalf("Unban: %v", err)
	}

	active, err = moderationRepo.ActiveBan(target.ID)
	if err != nil {
		t.Fatalf("ActiveBan after unban: %v", err)
	}
	if active != nil {
		t.Fatal("expected no active ban after Unban()")
	}
}

func TestMuteThenUnmuteChannelScoped(t *testing.T) {
	svc, database, _ := testService(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	target := createTestUser(t, database, "target", models.RoleMember)
	// mutes.channel_id references channels, so the muted channel must exist.
	channel, err := db.NewChannelRepository(database).Create("chan-1", models.ChannelKindText, admin.ID, "")
	if err != nil {
		t.Fatalf("creating test channel: %v", err)
	}

	if _, err := svc.Mute(Actor{UserID: admin.ID, Role: admin.Role}, target.ID, channel.ID, "cooldown", nil); err != nil {
		t.Fatalf("Mute: %v", err)
	}

	moderationRepo := db.NewModerationRepository(database)
	muted, err := moderationRepo.ActiveMute(target.ID, channel.ID)
	if err != nil {
		t.Fatalf("ActiveMute: %v", err)
	}
	if !muted {
		t.Fatal("expected target to be muted in chan-1")
	}

	mutedElsewhere, err := moderationRepo.ActiveMute(target.ID, "chan-2")
	if err != nil {
		t.Fatalf("ActiveMute chan-2: %v", err)
	}
	if mutedElsewhere {
		t.Fatal("expected a channel-scoped mute to not apply to a different channel")
	}

	if err := svc.Unmute(Actor{UserID: admin.ID, Role: admin.Role}, target.ID, channel.ID); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if muted, err := moderationRepo.ActiveMute(target.ID, channel.ID); err != nil || muted {
		t.Fatalf("expected mute lifted, active=%v err=%v", muted, err)
	}
}

func TestChangeRoleRejectsAssigningAtOrAboveActorsOwnRank(t *testing.T) {
	svc, database, _ := testService(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	member := createTestUser(t, database, "member", models.RoleMember)

	if err := svc.ChangeRole(Actor{UserID: admin.ID, Role: admin.Role}, member.ID, models.RoleAdmin); err == nil {
		t.Fatal("expected promoting a member to the actor's own rank to be rejected")
	}

	if err := svc.ChangeRole(Actor{UserID: admin.ID, Role: admin.Role}, member.ID, models.RoleModerator); err != nil {
		t.Fatalf("expected promoting below the actor's own rank to succeed, got %v", err)
	}

	users := db.NewUserRepository(database)
	updated, err := users.FindByID(member.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if updated.Role != models.RoleModerator {
		t.Fatalf("expected role %q, got %q", models.RoleModerator, updated.Role)
	}
}

func TestLogReturnsRecordedActions(t *testing.T) {
	svc, database, _ := testService(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	target := createTestUser(t, database, "target", models.RoleMember)

	if err := svc.Kick(Actor{UserID: admin.ID, Role: admin.Role}, target.ID, "spam"); err != nil {
		t.Fatalf("Kick: %v", err)
	}

	entries, err := svc.Log(10)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != models.ModLogActionKick {
		t.Fatalf("expected 1 kick log entry, got %+v", entries)
	}
}
