package ratelimit

import (
	"testing"

	"relay/internal/models"
)

func TestLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	l := NewLimiter()

	// DimensionTyping has burst 2.
	if !l.Allow("usr_1", DimensionTyping) {
		t.Fatal("expected first typing event to be allowed")
	}
	if !l.Allow("usr_1", DimensionTyping) {
		t.Fatal("expected second typing event (within burst) to be allowed")
	}
	if l.Allow("usr_1", DimensionTyping) {
		t.Fatal("expected a third immediate typing event to be rate limited")
	}
}

func TestLimiterBucketsAreIndependentPerUser(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 2; i++ {
		if !l.Allow("usr_1", DimensionTyping) {
			t.Fatalf("expected usr_1 burst slot %d to be allowed", i)
		}
	}
	if l.Allow("usr_1", DimensionTyping) {
		t.Fatal("expected usr_1 to now be rate limited")
	}

	if !l.Allow("usr_2", DimensionTyping) {
		t.Fatal("expected a different user's bucket to be untouched by usr_1's consumption")
	}
}

func TestLimiterBucketsAreIndependentPerDimension(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 2; i++ {
		l.Allow("usr_1", DimensionTyping)
	}
	if l.Allow("usr_1", DimensionTyping) {
		t.Fatal("expected typing bucket to be exhausted")
	}

	if !l.Allow("usr_1", DimensionSendMessage) {
		t.Fatal("expected a different dimension's bucket to be untouched")
	}
}

func TestForgetDropsUsersBuckets(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 2; i++ {
		l.Allow("usr_1", DimensionTyping)
	}
	if l.Allow("usr_1", DimensionTyping) {
		t.Fatal("expected bucket to be exhausted before Forget")
	}

	l.Forget("usr_1")

	if !l.Allow("usr_1", DimensionTyping) {
		t.Fatal("expected Forget to reset the user's bucket to a fresh burst")
	}
}

func TestPolicyAuthorizeEditMessageIsAuthorOnly(t *testing.T) {
	p := NewPolicy()

	author := Actor{UserID: "usr_1", Role: models.RoleMember}
	if !p.Authorize(author, ActionEditMessage, "usr_1", models.RoleMember) {
		t.Fatal("expected the author to be authorized to edit their own message")
	}
	if p.Authorize(author, ActionEditMessage, "usr_2", models.RoleMember) {
		t.Fatal("expected a non-author, even of equal role, to be forbidden")
	}

	admin := Actor{UserID: "usr_admin", Role: models.RoleAdmin}
	if p.Authorize(admin, ActionEditMessage, "usr_2", models.RoleMember) {
		t.Fatal("expected even an admin to be forbidden from editing someone else's message")
	}
}

func TestPolicyAuthorizeDeleteMessageAllowsAuthorOrModeratorPlus(t *testing.T) {
	p := NewPolicy()

	author := Actor{UserID: "usr_1", Role: models.RoleMember}
	if !p.Authorize(author, ActionDeleteMessage, "usr_1", models.RoleMember) {
		t.Fatal("expected the author to delete their own message")
	}

	member := Actor{UserID: "usr_2", Role: models.RoleMember}
	if p.Authorize(member, ActionDeleteMessage, "usr_1", models.RoleMember) {
		t.Fatal("expected a plain member to be forbidden from deleting someone else's message")
	}

	moderator := Actor{UserID: "usr_mod", Role: models.RoleModerator}
	if !p.Authorize(moderator, ActionDeleteMessage, "usr_1", models.RoleMember) {
		t.Fatal("expected a moderator to delete someone else's message")
	}
}

func TestPolicyAuthorizeChannelCRUDRequiresAdminPlus(t *testing.T) {
	p := NewPolicy()

	if p.Authorize(Actor{Role: models.RoleModerator}, ActionChannelCRUD, "", "") {
		t.Fatal("expected a moderator to be forbidden from channel CRUD")
	}
	if !p.Authorize(Actor{Role: models.RoleAdmin}, ActionChannelCRUD, "", "") {
		t.Fatal("expected an admin to be allowed channel CRUD")
	}
	if !p.Authorize(Actor{Role: models.RoleOwner}, ActionChannelCRUD, "", "") {
		t.Fatal("expected an owner to be allowed channel CRUD")
	}
}

func TestPolicyAuthorizeModerationActionsRequireStrictRankAboveTarget(t *testing.T) {
	p := NewPolicy()

	for _, action := range []Action{ActionKick, ActionBan, ActionMute, ActionRoleChange} {
		moderator := Actor{Role: models.RoleModerator}
		if !p.Authorize(moderator, action, "target", models.RoleMember) {
			t.Fatalf("%s: expected a moderator to outrank a member target", action)
		}
		if p.Authorize(moderator, action, "target", models.RoleModerator) {
			t.Fatalf("%s: expected strict rank to forbid acting on an equal-rank target", action)
		}

		member := Actor{Role: models.RoleMember}
		if p.Authorize(member, action, "target", models.RoleMember) {
			t.Fatalf("%s: expected a member to never perform a moderation action, even on an equal-rank target", action)
		}
	}
}

func TestPolicyAuthorizeUnknownActionIsDenied(t *testing.T) {
	p := NewPolicy()
	if p.Authorize(Actor{Role: models.RoleOwner}, Action("nonsense"), "", "") {
		t.Fatal("expected an unrecognized action to be denied by default")
	}
}
