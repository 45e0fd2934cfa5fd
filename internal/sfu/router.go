package sfu

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"relay/internal/bus"
)

// Router is one voice channel's SFU router: homed on a single worker,
// holding every participant's transports, producers, and consumers. Created
// lazily on first join, released when the channel's last participant
// leaves (spec 4.F topology).
type Router struct {
	channelID string
	worker    *worker
	bus       *bus.Bus
	onClose   func(channelID string)

	mu         sync.RWMutex
	transports map[string]*Transport
	producers  map[string]*Producer // producerID -> producer, across all participants
	closed     bool
}

func newRouter(channelID string, w *worker, eventBus *bus.Bus, onClose func(string)) *Router {
	return &Router{
		channelID:  channelID,
		worker:     w,
		bus:        eventBus,
		onClose:    onClose,
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
	}
}

// RTPCapabilities returns the router's supported codecs, so the client can
// build a matching device before producing or consuming
// (router_rtp_capabilities). Every router on the same deployment shares the
// same codec set, fixed at worker startup.
func (r *Router) RTPCapabilities() []webrtc.RTPCodecParameters {
	return r.worker.codecs
}

// CreateTransport lazily creates a new ICE/DTLS transport pair for a
// participant, per the explicit-direction resolution of Open Question 1:
// direction is an explicit argument, not inferred from call order.
func (r *Router) CreateTransport(direction Direction, owner string) (*Transport, error) {
	t, err := newTransport(r.worker, direction, owner)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Close()
		return nil, ErrRouterNotFound
	}
	r.transports[t.ID] = t
	r.mu.Unlock()

	return t, nil
}

func (r *Router) Transport(id string) (*Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[id]
	return t, ok
}

// DeleteTransport closes the transport and cascades to its producers and
// consumers (spec 4.F cleanup invariant).
func (r *Router) DeleteTransport(id string) error {
	r.mu.Lock()
	t, ok := r.transports[id]
	if !ok {
		r.mu.Unlock()
		return ErrTransportNotFound
	}
	delete(r.transports, id)
	for pid, p := range r.producers {
		if p.transportID == id {
			delete(r.producers, pid)
		}
	}
	r.mu.Unlock()

	t.Close()
	return nil
}

// CloseUserTransports tears down every transport owned by userID (and
// therefore every producer/consumer riding them), per the cleanup invariant
// that a session's transports never outlive the session itself. Used by
// voice.Controller.Leave so a participant who leaves a room that stays open
// for others doesn't leak their send/recv transports for the room's
// lifetime, same cascade DeleteTransport runs for a single client-driven
// delete.
func (r *Router) CloseUserTransports(userID string) {
	r.mu.Lock()
	var owned []*Transport
	for id, t := range r.transports {
		if t.Owner != userID {
			continue
		}
		owned = append(owned, t)
		delete(r.transports, id)
		for pid, p := range r.producers {
			if p.transportID == id {
				delete(r.producers, pid)
			}
		}
	}
	r.mu.Unlock()

	for _, t := range owned {
		t.Close()
	}
}

// RegisterProducer indexes a freshly-created producer in the router and
// announces it to the channel — new_producer must be observed by
// subscribers strictly before any later consume races against it, which is
// why registration happens before the caller returns the producer ID.
func (r *Router) RegisterProducer(p *Producer, excludeUserID string) {
	r.mu.Lock()
	r.producers[p.ID] = p
	r.mu.Unlock()

	r.bus.Publish(bus.Channel(r.channelID), bus.Event{
		Name: "NEW_PRODUCER",
		Payload: map[string]any{
			"channel_id":  r.channelID,
			"producer_id": p.ID,
			"user_id":     p.userID,
			"kind":        p.kind,
			"label":       p.label,
		},
	})
}

func (r *Router) Producer(id string) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

// ListProducers supports a joining client's back-catalog reconciliation.
func (r *Router) ListProducers() []*Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Producer, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, p)
	}
	return out
}

func (r *Router) RemoveProducer(id string) {
	r.mu.Lock()
	p, ok := r.producers[id]
	if ok {
		delete(r.producers, id)
	}
	r.mu.Unlock()

	if ok {
		r.bus.Publish(bus.Channel(r.channelID), bus.Event{
			Name:    "PRODUCER_CLOSED",
			Payload: map[string]any{"channel_id": r.channelID, "producer_id": id, "user_id": p.userID},
		})
	}
}

// CloseProducer implements voice.Router's producer-close hook: it finds
// this user's producer for the given media label (if any is currently
// live) and tears it down, same as an explicit delete_transport would for
// that producer alone. A no-op if the user never produced that label, or
// already stopped.
func (r *Router) CloseProducer(userID, label string) {
	r.mu.Lock()
	var match *Producer
	for id, p := range r.producers {
		if p.userID == userID && p.label == label {
			match = p
			delete(r.producers, id)
			break
		}
	}
	r.mu.Unlock()

	if match == nil {
		return
	}
	match.close()

	r.bus.Publish(bus.Channel(r.channelID), bus.Event{
		Name:    "PRODUCER_CLOSED",
		Payload: map[string]any{"channel_id": r.channelID, "producer_id": match.ID, "user_id": match.userID},
	})
}

// Close implements voice.Router: closing a router tears down every
// transport (and therefore every producer/consumer) homed on it, and
// releases the worker slot it occupied.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.transports = nil
	r.producers = nil
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	r.worker.release()
	if r.onClose != nil {
		r.onClose(r.channelID)
	}
}
