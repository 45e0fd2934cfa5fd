package models

import "time"

type ChannelKind string

const (
	ChannelKindText  ChannelKind = "text"
	ChannelKindVoice ChannelKind = "voice"
)

type Channel struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	CreatorID string      `json:"creatorId"`
	Topic     string      `json:"topic,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}
