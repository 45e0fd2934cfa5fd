package models

import "time"

type Message struct {
	ID              string     `json:"id"`
	ChannelID       string     `json:"channelId"`
	AuthorID        string     `json:"authorId"`
	AuthorName      string     `json:"authorName,omitempty"`
	AuthorAvatarURL *string    `json:"authorAvatarUrl,omitempty"`
	Content         string     `json:"content"`
	ReplyToID       *string    `json:"replyToId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	EditedAt        *time.Time `json:"editedAt,omitempty"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`

	Attachments  []Attachment  `json:"attachments,omitempty"`
	Reactions    []ReactionSet `json:"reactions,omitempty"`
	LinkPreviews []LinkPreview `json:"linkPreviews,omitempty"`
	ReplyPreview *ReplyPreview `json:"replyPreview,omitempty"`
}

// ReplyPreview is the author-plus-truncated-content summary attached to a
// message's broadcast event when it replies to another message, so clients
// can render the quoted context without a second round trip.
type ReplyPreview struct {
	MessageID  string `json:"messageId"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`
}

// ReactionSet is the aggregate view of one emoji's reactors on a message,
// as returned to clients (distinct from the Reaction row stored per user).
type ReactionSet struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"userIds"`
	Count   int      `json:"count"`
}

type Reaction struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

type Attachment struct {
	ID           string    `json:"id"`
	MessageID    string    `json:"messageId"`
	BlobID       string    `json:"blobId"`
	URL          string    `json:"url"`
	PreviewURL   *string   `json:"previewUrl,omitempty"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	OriginalName string    `json:"originalName"`
	Width        *int      `json:"width,omitempty"`
	Height       *int      `json:"height,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type LinkPreview struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	SiteName    string    `json:"siteName,omitempty"`
	FetchedAt   time.Time `json:"fetchedAt"`
}
