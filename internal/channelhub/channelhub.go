// Package channelhub is the Channel Hub: per-channel arenas handling join,
// typing, message send/edit/delete, reaction toggling, and link preview
// hydration. Generalizes the teacher's single global ws.Hub (one
// process-wide clients map) into N independent channelState arenas, each
// with its own lock, so work on unrelated channels never contends — the
// teacher's Hub.Run select-loop collapses here into direct, per-channel
// locked methods since there is no longer one shared broadcast channel to
// serialize through.
package channelhub

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"relay/internal/apperr"
	"relay/internal/bus"
	"relay/internal/constants"
	"relay/internal/db"
	"relay/internal/linkpreview"
	"relay/internal/models"
	"relay/internal/ratelimit"
)

// htmlPolicy sanitizes message content before persistence, grounded on the
// teacher's ws/client.go bluemonday policy.
var htmlPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "strong", "b", "em", "i", "s", "del",
		"code", "pre", "a", "ul", "ol", "li", "blockquote",
		"h1", "h2", "h3", "h4", "h5", "h6", "hr",
	)
	p.AllowAttrs("href", "rel").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

type Actor struct {
	UserID     string
	Username   string
	AvatarURL  *string
	Role       models.Role
	MutedUntil *time.Time
}

func (a Actor) muted(now time.Time) bool {
	return a.MutedUntil != nil && now.Before(*a.MutedUntil)
}

func (a Actor) policyActor() ratelimit.Actor {
	return ratelimit.Actor{UserID: a.UserID, Role: a.Role}
}

// channelState is the per-channel arena: just the typing tracker today, but
// the seam the spec's concurrency model requires — a lock per channel, not
// a global one — lives here regardless of how little state a given channel
// needs.
type channelState struct {
	mu     sync.Mutex
	typing map[string]time.Time // userID -> expiry
}

type Hub struct {
	channels    *db.ChannelRepository
	messages    *db.MessageRepository
	reactions   *db.ReactionRepository
	attachments *db.AttachmentRepository
	previews    *db.LinkPreviewRepository
	linkpreview *linkpreview.Service
	bus         *bus.Bus
	limiter     *ratelimit.Limiter
	policy      *ratelimit.Policy

	mu     sync.Mutex
	states map[string]*channelState
}

func NewHub(
	channels *db.ChannelRepository,
	messages *db.MessageRepository,
	reactions *db.ReactionRepository,
	attachments *db.AttachmentRepository,
	previews *db.LinkPreviewRepository,
	lp *linkpreview.Service,
	eventBus *bus.Bus,
	limiter *ratelimit.Limiter,
	policy *ratelimit.Policy,
) *Hub {
	return &Hub{
		channels:    channels,
		messages:    messages,
		reactions:   reactions,
		attachments: attachments,
		previews:    previews,
		linkpreview: lp,
		bus:         eventBus,
		limiter:     limiter,
		policy:      policy,
		states:      make(map[string]*channelState),
	}
}

func (h *Hub) stateFor(channelID string) *channelState {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.states[channelID]
	if !ok {
		s = &channelState{typing: make(map[string]time.Time)}
		h.states[channelID] = s
	}
	return s
}

// CreateChannel requires admin+.
func (h *Hub) CreateChannel(actor Actor, name string, kind models.ChannelKind, topic string) (*models.Channel, error) {
	if !h.policy.Authorize(actor.policyActor(), ratelimit.ActionChannelCRUD, "", "") {
		return nil, apperr.New(apperr.Forbidden, "admin role required to create channels")
	}
	if !h.limiter.Allow(actor.UserID, ratelimit.DimensionCreateChannel) {
		return nil, apperr.New(apperr.RateLimited, "creating channels too quickly")
	}
	if len(name) == 0 || len(name) > constants.MaxChannelNameBytes {
		return nil, apperr.New(apperr.Invalid, "invalid channel name")
	}

	ch, err := h.channels.Create(name, kind, actor.UserID, topic)
	if err != nil {
		return nil, err
	}

	h.bus.Publish(bus.Everyone(), bus.Event{Name: "CHANNEL_CREATE", Payload: ch})
	return ch, nil
}

func (h *Hub) DeleteChannel(actor Actor, channelID string) error {
	if !h.policy.Authorize(actor.policyActor(), ratelimit.ActionChannelCRUD, "", "") {
		return apperr.New(apperr.Forbidden, "admin role required to delete channels")
	}

	if err := h.channels.Delete(channelID); err != nil {
		return err
	}

	h.mu.Lock()
	delete(h.states, channelID)
	h.mu.Unlock()

	h.bus.Publish(bus.Everyone(), bus.Event{Name: "CHANNEL_DELETE", Payload: map[string]string{"channel_id": channelID}})
	return nil
}

func (h *Hub) ListChannels() ([]*models.Channel, error) {
	return h.channels.List()
}

func (h *Hub) UpdateChannelTopic(actor Actor, channelID, topic string) (*models.Channel, error) {
	if !h.policy.Authorize(actor.policyActor(), ratelimit.ActionChannelCRUD, "", "") {
		return nil, apperr.New(apperr.Forbidden, "admin role required to update channels")
	}
	if err := h.channels.UpdateTopic(channelID, topic); err != nil {
		return nil, err
	}

	ch, err := h.channels.FindByID(channelID)
	if err != nil {
		return nil, err
	}

	h.bus.Publish(bus.Everyone(), bus.Event{Name: "CHANNEL_UPDATE", Payload: ch})
	return ch, nil
}

// Typing records a typing indicator and broadcasts it.
func (h *Hub) Typing(actor Actor, channelID string) error {
	if !h.limiter.Allow(actor.UserID, ratelimit.DimensionTyping) {
		return apperr.New(apperr.RateLimited, "typing events too frequent")
	}

	state := h.stateFor(channelID)
	state.mu.Lock()
	state.typing[actor.UserID] = time.Now().Add(8 * time.Second)
	state.mu.Unlock()

	h.bus.Publish(bus.Channel(channelID), bus.Event{
		Name: "TYPING_START",
		Payload: map[string]any{
			"channel_id": channelID,
			"user_id":    actor.UserID,
			"username":   actor.Username,
		},
	})
	return nil
}

// AttachmentInput describes an already-uploaded blob (via the upload
// endpoint) a caller wants linked to the message it is about to send.
type AttachmentInput struct {
	BlobID       string
	URL          string
	PreviewURL   *string
	MimeType     string
	OriginalName string
	SizeBytes    int64
	Width        *int
	Height       *int
}

// SendMessage persists a message then publishes it, matching the ordering
// guarantee that persistence precedes broadcast.
func (h *Hub) SendMessage(actor Actor, channelID, content string, replyToID *string, attachments []AttachmentInput) (*models.Message, error) {
	if actor.muted(time.Now()) {
		return nil, apperr.New(apperr.Forbidden, "you are muted")
	}
	if !h.limiter.Allow(actor.UserID, ratelimit.DimensionSendMessage) {
		return nil, apperr.New(apperr.RateLimited, "sending messages too quickly")
	}

	content = htmlPolicy.Sanitize(content)
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return nil, apperr.New(apperr.Invalid, "message content is empty")
	}
	if len(content) > constants.MaxMessageContentBytes {
		return nil, apperr.New(apperr.Invalid, "message content too long")
	}

	if replyToID != nil {
		if _, err := h.messages.FindByID(*replyToID); err != nil {
			replyToID = nil
		}
	}

	msg, err := h.messages.Create(channelID, actor.UserID, content, replyToID)
	if err != nil {
		return nil, err
	}
	msg.AuthorName = actor.Username
	msg.AuthorAvatarURL = actor.AvatarURL

	if replyToID != nil {
		msg.ReplyPreview = h.buildReplyPreview(*replyToID)
	}

	for _, a := range attachments {
		stored, err := h.attachments.Create(msg.ID, a.BlobID, a.MimeType, a.OriginalName, a.SizeBytes, a.Width, a.Height)
		if err != nil {
			continue
		}
		stored.URL = a.URL
		stored.PreviewURL = a.PreviewURL
		msg.Attachments = append(msg.Attachments, *stored)
	}

	h.bus.Publish(bus.Channel(channelID), bus.Event{Name: "MESSAGE_CREATE", Payload: msg})

	h.hydrateLinkPreviews(channelID, msg.ID, content)

	return msg, nil
}

// buildReplyPreview looks up the message a new send is replying to and
// condenses it into an author+truncated-content summary for the broadcast
// event. Returns nil on any lookup failure (already-deleted parent, bad ID)
// rather than failing the send. SendMessage drops a reply_to that names no
// stored message before persisting, so an unknown ID is not recorded; a
// soft-deleted parent keeps its reply link.
func (h *Hub) buildReplyPreview(replyToID string) *models.ReplyPreview {
	parent, err := h.messages.FindByIDWithAuthor(replyToID)
	if err != nil || parent.DeletedAt != nil {
		return nil
	}

	return &models.ReplyPreview{
		MessageID:  parent.ID,
		AuthorName: parent.AuthorName,
		Content:    truncateRunes(parent.Content, constants.ReplyPreviewMaxRunes),
	}
}

// truncateRunes shortens s to at most n runes, appending an ellipsis when
// anything was cut so the preview reads as partial rather than complete.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

// hydrateLinkPreviews runs in the background: it must never delay or fail
// message send, so it fires after the MESSAGE_CREATE publish and pushes its
// own LINK_PREVIEW_READY event once (if ever) a preview resolves.
func (h *Hub) hydrateLinkPreviews(channelID, messageID, content string) {
	urls := linkpreview.ExtractURLs(content)
	if len(urls) == 0 || h.linkpreview == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for _, u := range urls {
			preview := h.linkpreview.Fetch(ctx, u)
			if preview == nil {
				continue
			}

			stored, err := h.previews.Upsert(preview.URL, preview.Title, preview.Description, preview.ImageURL, preview.SiteName)
			if err != nil {
				continue
			}
			if err := h.previews.LinkToMessage(messageID, stored.ID); err != nil {
				continue
			}

			h.bus.Publish(bus.Channel(channelID), bus.Event{
				Name: "LINK_PREVIEW_READY",
				Payload: map[string]any{
					"message_id": messageID,
					"preview":    stored,
				},
			})
		}
	}()
}

func (h *Hub) EditMessage(actor Actor, messageID, content string) (*models.Message, error) {
	existing, err := h.messages.FindByID(messageID)
	if err != nil {
		return nil, err
	}
	if !h.policy.Authorize(actor.policyActor(), ratelimit.ActionEditMessage, existing.AuthorID, "") {
		return nil, apperr.New(apperr.Forbidden, "only the author may edit this message")
	}

	content = htmlPolicy.Sanitize(content)
	if utf8.RuneCountInString(content) == 0 {
		return nil, apperr.New(apperr.Invalid, "message content is empty")
	}
	if len(content) > constants.MaxMessageContentBytes {
		return nil, apperr.New(apperr.Invalid, "message content too long")
	}

	msg, err := h.messages.Edit(messageID, content)
	if err != nil {
		return nil, err
	}

	h.bus.Publish(bus.Channel(existing.ChannelID), bus.Event{Name: "MESSAGE_UPDATE", Payload: msg})
	return msg, nil
}

func (h *Hub) DeleteMessage(actor Actor, messageID string) error {
	existing, err := h.messages.FindByID(messageID)
	if err != nil {
		return err
	}
	if !h.policy.Authorize(actor.policyActor(), ratelimit.ActionDeleteMessage, existing.AuthorID, "") {
		return apperr.New(apperr.Forbidden, "not permitted to delete this message")
	}

	if err := h.messages.Delete(messageID); err != nil {
		return err
	}

	h.bus.Publish(bus.Channel(existing.ChannelID), bus.Event{
		Name:    "MESSAGE_DELETE",
		Payload: map[string]string{"channel_id": existing.ChannelID, "message_id": messageID},
	})
	return nil
}

// AddReaction implements the PUT reaction route: idempotent, a repeat call
// for the same (message, user, emoji) is a no-op (spec.md §8 invariant 6).
func (h *Hub) AddReaction(actor Actor, messageID, emoji string) error {
	msg, err := h.reactionPrecheck(actor, messageID, emoji)
	if err != nil {
		return err
	}
	if err := h.reactions.Add(messageID, actor.UserID, emoji); err != nil {
		return err
	}
	h.publishReactionChange(msg.ChannelID, messageID, actor.UserID, emoji, true)
	return nil
}

// RemoveReaction implements the DELETE reaction route: idempotent, removing
// a missing triple succeeds silently (spec.md §8 invariant 6).
func (h *Hub) RemoveReaction(actor Actor, messageID, emoji string) error {
	msg, err := h.reactionPrecheck(actor, messageID, emoji)
	if err != nil {
		return err
	}
	if err := h.reactions.Remove(messageID, actor.UserID, emoji); err != nil {
		return err
	}
	h.publishReactionChange(msg.ChannelID, messageID, actor.UserID, emoji, false)
	return nil
}

func (h *Hub) reactionPrecheck(actor Actor, messageID, emoji string) (*models.Message, error) {
	if actor.muted(time.Now()) {
		return nil, apperr.New(apperr.Forbidden, "you are muted")
	}
	if !h.limiter.Allow(actor.UserID, ratelimit.DimensionReaction) {
		return nil, apperr.New(apperr.RateLimited, "reacting too quickly")
	}
	if len(emoji) == 0 || len(emoji) > constants.MaxReactionEmojiBytes {
		return nil, apperr.New(apperr.Invalid, "invalid emoji")
	}
	return h.messages.FindByID(messageID)
}

func (h *Hub) publishReactionChange(channelID, messageID, userID, emoji string, added bool) {
	h.bus.Publish(bus.Channel(channelID), bus.Event{
		Name: "MESSAGE_REACTION_TOGGLE",
		Payload: map[string]any{
			"message_id": messageID,
			"user_id":    userID,
			"emoji":      emoji,
			"added":      added,
		},
	})
}

func (h *Hub) History(channelID string, cursor *db.Cursor, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > constants.MessageHistoryMaxLimit {
		limit = constants.MessageHistoryDefaultLimit
	}

	msgs, err := h.messages.GetHistory(channelID, cursor, limit)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	reactionsByMsg, err := h.reactions.ListForMessages(ids)
	if err != nil {
		return nil, err
	}
	attachmentsByMsg, err := h.attachments.ListForMessages(ids)
	if err != nil {
		return nil, err
	}
	previewsByMsg, err := h.previews.ListForMessages(ids)
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		m.Reactions = reactionsByMsg[m.ID]
		m.Attachments = attachmentsByMsg[m.ID]
		m.LinkPreviews = previewsByMsg[m.ID]
	}

	return msgs, nil
}
