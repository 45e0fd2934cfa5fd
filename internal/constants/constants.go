// Package constants holds small tunables shared across packages that don't
// warrant their own config section.
package constants

const (
	// IDRandomBytes is the number of random bytes used to build prefixed IDs
	// (e.g. "usr_<hex>", "msg_<hex>").
	IDRandomBytes = 16

	// MessageHistoryMaxLimit bounds how many messages a single history page
	// can request.
	MessageHistoryMaxLimit = 200

	// MessageHistoryDefaultLimit is used when a history request omits limit.
	MessageHistoryDefaultLimit = 50

	// MaxMessageContentBytes bounds a single message's content length.
	MaxMessageContentBytes = 8000

	// MaxReactionEmojiBytes bounds a single reaction's emoji string length.
	MaxReactionEmojiBytes = 64

	// ReplyPreviewMaxRunes bounds how much of a replied-to message's content
	// is echoed back in the reply_to preview attached to a message event.
	ReplyPreviewMaxRunes = 120

	// MaxChannelNameBytes bounds a channel name's length.
	MaxChannelNameBytes = 100

	// MaxDroppedMessagesBeforeDisconnect is how many outbound frames can be
	// dropped for a slow session sink before it is force-disconnected.
	MaxDroppedMessagesBeforeDisconnect = 32

	// SessionSendBufferSize is the buffered channel depth for a session's
	// outbound sink.
	SessionSendBufferSize = 64
)
