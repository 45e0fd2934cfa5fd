package sfu

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Direction resolves Open Question 1 from the spec: a transport is
// explicitly send-only or receive-only, never inferred from call order.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// Transport wraps the ORTC primitive trio pion/webrtc exposes below its
// PeerConnection sugar: an ICEGatherer collects local candidates, an
// ICETransport does connectivity checks over them, and a DTLSTransport
// layers the secure channel producers/consumers ride on. This replaces the
// teacher's one-PeerConnection-per-user full mesh with the explicit
// create_transport/connect_transport surface the spec names.
type Transport struct {
	ID        string
	Direction Direction
	Owner     string // userID this transport belongs to, per spec's Transport{owner user id} (§3)

	api      *webrtc.API
	codecs   []webrtc.RTPCodecParameters
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	mu        sync.Mutex
	connected bool
	producers map[string]*Producer
	consumers map[string]*Consumer
}

func newTransportID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "tr_" + hex.EncodeToString(b[:])
}

func newTransport(w *worker, direction Direction, owner string) (*Transport, error) {
	gatherer, err := w.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("creating ice gatherer: %w", err)
	}

	ice := w.api.NewICETransport(gatherer)
	dtls, err := w.api.NewDTLSTransport(ice, nil)
	if err != nil {
		return nil, fmt.Errorf("creating dtls transport: %w", err)
	}

	if err := gatherer.Gather(); err != nil {
		return nil, fmt.Errorf("gathering ice candidates: %w", err)
	}

	return &Transport{
		ID:        newTransportID(),
		Direction: direction,
		Owner:     owner,
		api:       w.api,
		codecs:    w.codecs,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}, nil
}

// LocalParameters is what create_transport sends back to the client: ICE
// candidates/parameters plus the DTLS fingerprint it must match against.
type LocalParameters struct {
	ICECandidates  []webrtc.ICECandidate `json:"ice_candidates"`
	ICEParameters  webrtc.ICEParameters  `json:"ice_parameters"`
	DTLSParameters webrtc.DTLSParameters `json:"dtls_parameters"`
}

func (t *Transport) LocalParameters() (LocalParameters, error) {
	candidates, err := t.gatherer.GetLocalCandidates()
	if err != nil {
		return LocalParameters{}, fmt.Errorf("reading local candidates: %w", err)
	}
	iceParams, err := t.gatherer.GetLocalParameters()
	if err != nil {
		return LocalParameters{}, fmt.Errorf("reading local ice parameters: %w", err)
	}
	dtlsParams := t.dtls.GetLocalParameters()

	return LocalParameters{
		ICECandidates:  candidates,
		ICEParameters:  iceParams,
		DTLSParameters: dtlsParams,
	}, nil
}

// Connect implements connect_transport: starts ICE against the client's
// remote parameters in the transport's fixed role, then starts DTLS once
// connectivity is up. Idempotent against retransmitted connect calls.
func (t *Transport) Connect(remoteICE webrtc.ICEParameters, remoteDTLS webrtc.DTLSParameters) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = true
	t.mu.Unlock()

	role := webrtc.ICERoleControlled
	if t.Direction == DirectionSend {
		role = webrtc.ICERoleControlling
	}

	if err := t.ice.Start(t.gatherer, remoteICE, &role); err != nil {
		return transient("connect_transport", t.ID, fmt.Errorf("starting ice: %w", err))
	}
	if err := t.dtls.Start(remoteDTLS); err != nil {
		return transient("connect_transport", t.ID, fmt.Errorf("starting dtls: %w", err))
	}
	return nil
}

func (t *Transport) registerProducer(p *Producer) {
	t.mu.Lock()
	t.producers[p.ID] = p
	t.mu.Unlock()
}

func (t *Transport) registerConsumer(c *Consumer) {
	t.mu.Lock()
	t.consumers[c.ID] = c
	t.mu.Unlock()
}

// Close tears down every producer/consumer riding this transport before
// closing the DTLS/ICE/gatherer chain — the cascade the spec's
// delete_transport cleanup invariant requires.
func (t *Transport) Close() {
	t.mu.Lock()
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.producers = nil
	t.consumers = nil
	t.mu.Unlock()

	for _, p := range producers {
		p.close()
	}
	for _, c := range consumers {
		c.close()
	}

	_ = t.dtls.Stop()
	_ = t.ice.Stop()
	_ = t.gatherer.Close()
}
