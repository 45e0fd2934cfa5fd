package sfu

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Producer is one participant's outbound media track, riding a send
// transport via an RTPReceiver (the ORTC primitive that accepts inbound RTP
// from the client — "producing" from the router's point of view).
type Producer struct {
	ID          string
	transportID string
	userID      string
	kind        webrtc.RTPCodecType
	label       string // "mic", "camera", "screen" — matches the spec's media kinds

	receiver *webrtc.RTPReceiver
	closed   bool
}

func newProducerID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "pr_" + hex.EncodeToString(b[:])
}

// Produce implements the produce operation: the client has already
// connect_transport'd a send transport, and now hands the router its RTP
// parameters so the router can start receiving that media.
func (t *Transport) Produce(userID, label string, kind webrtc.RTPCodecType, rtpParams webrtc.RTPParameters) (*Producer, error) {
	if t.Direction != DirectionSend {
		return nil, ErrInvalidDirection
	}

	receiver, err := t.api.NewRTPReceiver(kind, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("creating rtp receiver: %w", err)
	}
	if err := receiver.Receive(webrtc.RTPReceiveParameters{Encodings: rtpParams.Encodings}); err != nil {
		return nil, fmt.Errorf("starting rtp receiver: %w", err)
	}

	p := &Producer{
		ID:          newProducerID(),
		transportID: t.ID,
		userID:      userID,
		kind:        kind,
		label:       label,
		receiver:    receiver,
	}
	t.registerProducer(p)
	return p, nil
}

func (p *Producer) close() {
	if p.closed {
		return
	}
	p.closed = true
	if p.receiver != nil {
		_ = p.receiver.Stop()
	}
}

func (p *Producer) UserID() string            { return p.userID }
func (p *Producer) Kind() webrtc.RTPCodecType { return p.kind }
func (p *Producer) Label() string             { return p.label }
func (p *Producer) TransportID() string       { return p.transportID }
