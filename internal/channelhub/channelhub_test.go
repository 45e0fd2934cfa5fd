package channelhub

import (
	"path/filepath"
	"testing"
	"time"

	"relay/internal/bus"
	"relay/internal/db"
	"relay/internal/models"
	"relay/internal/ratelimit"
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

// testHub wires a Hub against a freshly migrated sqlite database and a
// fresh Event Bus, mirroring NewServer's own wiring order in router.go.
func testHub(t *testing.T) (*Hub, *db.DB, *bus.Bus) {
	t.Helper()

	database := openTestDB(t)
	eventBus := bus.New()
	hub := NewHub(
		db.NewChannelRepository(database),
		db.NewMessageRepository(database),
		db.NewReactionRepository(database),
		db.NewAttachmentRepository(database),
		db.NewLinkPreviewRepository(database),
		nil, // no link preview fetching in tests
		eventBus,
		ratelimit.NewLimiter(),
		ratelimit.NewPolicy(),
	)
	return hub, database, eventBus
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

func createTestChannel(t *testing.T, hub *Hub, actor Actor, name string) *models.Channel {
	t.Helper()

	ch, err := hub.CreateChannel(actor, name, models.ChannelKindText, "")
	if err != nil {
		t.Fatalf("CreateChannel(%q): %v", name, err)
	}
	return ch
}

func subscribeEvents(eventBus *bus.Bus) *[]bus.Event {
	var got []bus.Event
	eventBus.Subscribe(func(_ bus.Target, evt bus.Event) {
		got = append(got, evt)
	})
	return &got
}

func TestCreateChannelRequiresAdminRole(t *testing.T) {
	hub, database, _ := testHub(t)
	member := createTestUser(t, database, "member", models.RoleMember)

	_, err := hub.CreateChannel(Actor{UserID: member.ID, Role: member.Role}, "general", models.ChannelKindText, "")
	if err == nil {
		t.Fatal("expected member to be forbidden from creating channels")
	}
}

func TestCreateChannelPublishesEvent(t *testing.T) {
	hub, database, eventBus := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	events := subscribeEvents(eventBus)

	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")

	if len(*events) != 1 || (*events)[0].Name != "CHANNEL_CREATE" {
		t.Fatalf("expected a single CHANNEL_CREATE event, got %+v", *events)
	}
	if ch.Name != "general" {
		t.Fatalf("expected channel name %q, got %q", "general", ch.Name)
	}
}

func TestSendMessagePersistsAndPublishes(t *testing.T) {
	hub, database, eventBus := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")
	events := subscribeEvents(eventBus)

	actor := Actor{UserID: author.ID, Username: author.Username, Role: author.Role}
	msg, err := hub.SendMessage(actor, ch.ID, "hello world", nil, nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if msg.Content != "hello world" {
		t.Fatalf("expected content %q, got %q", "hello world", msg.Content)
	}
	if msg.AuthorName != "alice" {
		t.Fatalf("expected author name %q, got %q", "alice", msg.AuthorName)
	}

	found := false
	for _, evt := range *events {
		if evt.Name == "MESSAGE_CREATE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a MESSAGE_CREATE event among %+v", *events)
	}

	history, err := hub.History(ch.ID, nil, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("expected the sent message in history, got %+v", history)
	}
}

func TestSendMessageAttachesReplyPreviewWithTruncatedContent(t *testing.T) {
	hub, database, _ := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")
	actor := Actor{UserID: author.ID, Username: author.Username, Role: author.Role}

	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	parent, err := hub.SendMessage(actor, ch.ID, long, nil, nil)
	if err != nil {
		t.Fatalf("SendMessage parent: %v", err)
	}

	reply, err := hub.SendMessage(actor, ch.ID, "replying", &parent.ID, nil)
	if err != nil {
		t.Fatalf("SendMessage reply: %v", err)
	}

	if reply.ReplyPreview == nil {
		t.Fatal("expected a reply preview to be attached")
	}
	if reply.ReplyPreview.MessageID != parent.ID {
		t.Fatalf("expected preview to reference %q, got %q", parent.ID, reply.ReplyPreview.MessageID)
	}
	if reply.ReplyPreview.AuthorName != "alice" {
		t.Fatalf("expected preview author %q, got %q", "alice", reply.ReplyPreview.AuthorName)
	}
	if got := len([]rune(reply.ReplyPreview.Content)); got != 121 {
		t.Fatalf("expected truncated preview content of 120 runes plus ellipsis (121), got %d", got)
	}
}

func TestSendMessageWithUnknownReplyToOmitsPreview(t *testing.T) {
	hub, database, _ := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")
	actor := Actor{UserID: author.ID, Username: author.Username, Role: author.Role}

	missing := "msg_does_not_exist"
	msg, err := hub.SendMessage(actor, ch.ID, "hi", &missing, nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ReplyPreview != nil {
		t.Fatalf("expected no preview for an unknown reply_to, got %+v", msg.ReplyPreview)
	}
}

func TestSendMessageRejectsEmptyContentWithoutAttachments(t *testing.T) {
	hub, database, _ := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")

	actor := Actor{UserID: author.ID, Username: author.Username, Role: author.Role}
	if _, err := hub.SendMessage(actor, ch.ID, "   ", nil, nil); err == nil {
		t.Fatal("expected empty message with no attachments to be rejected")
	}
}

func TestSendMessageAllowsAttachmentOnlyMessage(t *testing.T) {
	hub, database, _ := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")

	actor := Actor{UserID: author.ID, Username: author.Username, Role: author.Role}
	attachments := []AttachmentInput{
		{BlobID: "blob_1", URL: "https://cdn.example.com/blob_1", MimeType: "image/png", OriginalName: "shot.png", SizeBytes: 1024},
	}

	msg, err := hub.SendMessage(actor, ch.ID, "", nil, attachments)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].URL != attachments[0].URL {
		t.Fatalf("expected round-tripped URL %q, got %q", attachments[0].URL, msg.Attachments[0].URL)
	}
}

func TestSendMessageRejectsMutedActor(t *testing.T) {
	hub, database, _ := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")

	until := time.Now().Add(time.Hour)
	actor := Actor{UserID: author.ID, Username: author.Username, Role: author.Role, MutedUntil: &until}

	if _, err := hub.SendMessage(actor, ch.ID, "hello", nil, nil); err == nil {
		t.Fatal("expected a muted actor's message to be rejected")
	}
}

func TestAddReactionIsIdempotent(t *testing.T) {
	hub, database, eventBus := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")

	msg, err := hub.SendMessage(Actor{UserID: author.ID, Username: author.Username, Role: author.Role}, ch.ID, "hi", nil, nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	events := subscribeEvents(eventBus)
	actor := Actor{UserID: author.ID, Role: author.Role}

	if err := hub.AddReaction(actor, msg.ID, "👍"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	if err := hub.AddReaction(actor, msg.ID, "👍"); err != nil {
		t.Fatalf("repeat AddReaction should succeed as a no-op: %v", err)
	}

	reactionEvents := 0
	for _, evt := range *events {
		if evt.Name == "MESSAGE_REACTION_TOGGLE" {
			reactionEvents++
		}
	}
	if reactionEvents != 2 {
		t.Fatalf("expected 2 toggle events published (one per call), got %d", reactionEvents)
	}
}

func TestRemoveReactionOnMissingTripleSucceeds(t *testing.T) {
	hub, database, _ := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")

	msg, err := hub.SendMessage(Actor{UserID: author.ID, Username: author.Username, Role: author.Role}, ch.ID, "hi", nil, nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if err := hub.RemoveReaction(Actor{UserID: author.ID, Role: author.Role}, msg.ID, "👍"); err != nil {
		t.Fatalf("expected removing a never-added reaction to succeed silently, got %v", err)
	}
}

func TestEditMessageOnlyAuthor(t *testing.T) {
	hub, database, _ := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	author := createTestUser(t, database, "alice", models.RoleMember)
	other := createTestUser(t, database, "bob", models.RoleMember)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")

	msg, err := hub.SendMessage(Actor{UserID: author.ID, Username: author.Username, Role: author.Role}, ch.ID, "hi", nil, nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if _, err := hub.EditMessage(Actor{UserID: other.ID, Role: other.Role}, msg.ID, "hijacked"); err == nil {
		t.Fatal("expected a non-author edit to be forbidden")
	}

	edited, err := hub.EditMessage(Actor{UserID: author.ID, Role: author.Role}, msg.ID, "edited content")
	if err != nil {
		t.Fatalf("expected the author's edit to succeed, got %v", err)
	}
	if edited.Content != "edited content" {
		t.Fatalf("expected edited content, got %q", edited.Content)
	}
}

func TestTypingPublishesPerChannel(t *testing.T) {
	hub, database, eventBus := testHub(t)
	admin := createTestUser(t, database, "admin", models.RoleAdmin)
	ch := createTestChannel(t, hub, Actor{UserID: admin.ID, Role: admin.Role}, "general")

	var targets []bus.Target
	eventBus.Subscribe(func(target bus.Target, evt bus.Event) {
		if evt.Name == "TYPING_START" {
			targets = append(targets, target)
		}
	})

	if err := hub.Typing(Actor{UserID: admin.ID, Username: admin.Username, Role: admin.Role}, ch.ID); err != nil {
		t.Fatalf("Typing: %v", err)
	}

	if len(targets) != 1 || targets[0].Kind != bus.TargetChannel || targets[0].ID != ch.ID {
		t.Fatalf("expected one channel-scoped typing event for %q, got %+v", ch.ID, targets)
	}
}
