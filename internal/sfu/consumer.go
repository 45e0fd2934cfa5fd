package sfu

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Consumer is one subscriber's inbound copy of a remote producer's media,
// riding a recv transport via an RTPSender — the ORTC primitive that pushes
// RTP back out to the client ("consuming" from the router's point of view).
// Consumers start sending as soon as they are created; there is no paused
// state and no separate resume_consumer call.
type Consumer struct {
	ID         string
	ProducerID string
	userID     string

	sender *webrtc.RTPSender
	closed bool
}

func newConsumerID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "cs_" + hex.EncodeToString(b[:])
}

// Consume implements the consume operation: given a producer this user
// wants to receive, the router wires that producer's track onto the
// caller's recv transport and starts sending immediately.
func (r *Router) Consume(t *Transport, userID, producerID string) (*Consumer, error) {
	if t.Direction != DirectionRecv {
		return nil, ErrInvalidDirection
	}

	producer, ok := r.Producer(producerID)
	if !ok {
		return nil, ErrProducerNotFound
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: codecMimeType(producer.kind)},
		producer.label, producer.userID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating local track: %w", err)
	}

	sender, err := t.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("creating rtp sender: %w", err)
	}

	params := webrtc.RTPParameters{Codecs: matchingCodecs(t.codecs, producer.kind)}
	if err := sender.Send(webrtc.RTPSendParameters{RTPParameters: params}); err != nil {
		return nil, fmt.Errorf("starting rtp sender: %w", err)
	}

	c := &Consumer{ID: newConsumerID(), ProducerID: producerID, userID: userID, sender: sender}
	t.registerConsumer(c)
	return c, nil
}

func codecMimeType(kind webrtc.RTPCodecType) string {
	if kind == webrtc.RTPCodecTypeVideo {
		return webrtc.MimeTypeVP9
	}
	return webrtc.MimeTypeOpus
}

func matchingCodecs(codecs []webrtc.RTPCodecParameters, kind webrtc.RTPCodecType) []webrtc.RTPCodecParameters {
	mime := codecMimeType(kind)
	for _, c := range codecs {
		if c.MimeType == mime {
			return []webrtc.RTPCodecParameters{c}
		}
	}
	return nil
}

func (c *Consumer) close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.sender != nil {
		_ = c.sender.Stop()
	}
}
