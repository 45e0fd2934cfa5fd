// Package wsio is the WebSocket transport: it authenticates and upgrades a
// connection, registers it with the Session Registry, and translates
// between the wire's flat message_type/type frames and the domain packages
// (channelhub.Hub, voice.Controller, moderation) that do the actual work.
// Grounded on the teacher's internal/ws package (client.go's ReadPump/
// WritePump mechanics, hub.go's broadcast-to-everyone policy for voice
// state), generalized so a session's text-channel subscription and its
// global voice presence are tracked independently rather than through one
// shared Hub.
package wsio

// Inbound message_type values a client sends.
const (
	inTypeJoin              = "join"
	inTypeTyping            = "typing"
	inTypePing              = "ping"
	inTypeMessage           = "message"
	inTypeVoiceStateUpdate  = "voice_state_update"
	inTypeVoiceSpeaking     = "voice_speaking"
	inTypeScreenShareUpdate = "screen_share_update"
	inTypeCameraUpdate      = "camera_update"
)

// Outbound type values delivered to a client, the discriminated union named
// by the wire contract.
const (
	outTypeMessage            = "message"
	outTypeMessageEdited      = "message_edited"
	outTypeMessageDeleted     = "message_deleted"
	outTypeChannelCreated     = "channel_created"
	outTypeChannelUpdated     = "channel_updated"
	outTypeChannelDeleted     = "channel_deleted"
	outTypeUserOnline         = "user_online"
	outTypeUserOffline        = "user_offline"
	outTypeUserAvatarUpdated  = "user_avatar_updated"
	outTypeUserProfileUpdated = "user_profile_updated"
	outTypeUserRenamed        = "user_renamed"
	outTypeUserRoleChanged    = "user_role_changed"
	outTypeUserKicked         = "user_kicked"
	outTypeUserBanned         = "user_banned"
	outTypeReactionAdded      = "reaction_added"
	outTypeReactionRemoved    = "reaction_removed"
	outTypeLinkPreviewReady   = "link_preview_ready"
	outTypeVoiceUserJoined    = "voice_user_joined"
	outTypeVoiceUserLeft      = "voice_user_left"
	outTypeVoiceStateUpdated  = "voice_state_updated"
	outTypeVoiceSpeaking      = "voice_speaking"
	outTypeScreenShareUpdated = "screen_share_updated"
	outTypeCameraUpdated      = "camera_updated"
	outTypeNewProducer        = "new_producer"
	outTypeTyping             = "typing"
	outTypeError              = "error"
	outTypePong               = "pong"
)

// inboundFrame is the flat envelope every client->server command arrives as;
// only the fields relevant to message_type are populated at once.
type inboundFrame struct {
	MessageType     string           `json:"message_type"`
	ChannelID       string           `json:"channel_id"`
	Content         string           `json:"content"`
	ReplyToID       *string          `json:"reply_to_id,omitempty"`
	Attachments     []wireAttachment `json:"attachments,omitempty"`
	IsMuted         *bool            `json:"is_muted,omitempty"`
	IsDeafened      *bool            `json:"is_deafened,omitempty"`
	IsSpeaking      bool             `json:"is_speaking"`
	IsScreenSharing bool             `json:"is_screen_sharing"`
	IsCameraSharing bool             `json:"is_camera_sharing"`
}

// wireAttachment mirrors the REST send-message endpoint's round-tripped
// blob metadata shape (sendMessageAttachment in internal/api/messages.go):
// this project never persists a pending-attachment table keyed by ID, so the
// WS message command carries the same already-uploaded blob metadata the
// REST path does instead of bare attachment_ids.
type wireAttachment struct {
	BlobID       string  `json:"blob_id"`
	URL          string  `json:"url"`
	PreviewURL   *string `json:"preview_url,omitempty"`
	MimeType     string  `json:"mime_type"`
	OriginalName string  `json:"original_name"`
	SizeBytes    int64   `json:"size_bytes"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
}

// outboundFrame is the {type, payload} envelope every server->client event
// is wrapped in.
type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
