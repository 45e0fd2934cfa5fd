// Package voice is the Voice Room Controller: per-voice-channel rooms
// tracking join/leave lifecycle, mute/deafen/speaking/screen-share state,
// and the per-room SFU router handle. Generalizes the teacher's single
// process-wide voiceParticipants map (one voice room for the whole server)
// into `map[channelID]*Room`, grounded on the voice lifecycle state machine
// named by internal/ws/hub_voice_lifecycle_test.go and exercised through
// internal/ws/client.go's handleVoiceJoin/handleVoiceLeave/handleVoiceStateSet.
package voice

import (
	"fmt"
	"sync"

	"relay/internal/apperr"
	"relay/internal/bus"
)

type LifecycleState string

const (
	LifecycleNotInVoice LifecycleState = "not_in_voice"
	LifecycleJoining    LifecycleState = "joining"
	LifecycleActive     LifecycleState = "active"
	LifecycleLeaving    LifecycleState = "leaving"
)

// isValidTransition matches the transition table named by the teacher's
// hub_voice_lifecycle_test.go: not_in_voice -> joining -> active -> leaving
// -> not_in_voice, with leaving reachable directly from joining too.
func isValidTransition(from, to LifecycleState) bool {
	switch from {
	case LifecycleNotInVoice:
		return to == LifecycleJoining
	case LifecycleJoining:
		return to == LifecycleActive || to == LifecycleLeaving
	case LifecycleActive:
		return to == LifecycleLeaving
	case LifecycleLeaving:
		return to == LifecycleNotInVoice
	default:
		return false
	}
}

type Session struct {
	State       LifecycleState
	Muted       bool
	Deafened    bool
	Speaking    bool
	ScreenShare bool
	CameraShare bool
}

// Router is the per-room handle into the SFU control plane. Voice depends
// only on this interface, not on the concrete sfu package, so the two
// arenas can be closed/released independently and communicate only through
// the Event Bus — the decoupling spec.md §9 asks for.
type Router interface {
	Close()
	CloseProducer(userID, label string)
	CloseUserTransports(userID string)
}

type RouterFactory func(channelID string) (Router, error)

// Room is one voice channel's arena: its own lock, its own participant set,
// and its own router handle, created lazily on first join and released when
// the last participant leaves.
type Room struct {
	mu           sync.Mutex
	channelID    string
	participants map[string]*Session
	router       Router
}

type Controller struct {
	bus           *bus.Bus
	routerFactory RouterFactory

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewController(eventBus *bus.Bus, routerFactory RouterFactory) *Controller {
	return &Controller{
		bus:           eventBus,
		routerFactory: routerFactory,
		rooms:         make(map[string]*Room),
	}
}

func (c *Controller) roomFor(channelID string) *Room {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[channelID]
	if !ok {
		r = &Room{channelID: channelID, participants: make(map[string]*Session)}
		c.rooms[channelID] = r
	}
	return r
}

// releaseIfEmpty must be called without the room's own lock held, after
// dropping a participant — it closes and discards the room's router once
// the last participant has left.
func (c *Controller) releaseIfEmpty(r *Room) {
	r.mu.Lock()
	empty := len(r.participants) == 0
	router := r.router
	if empty {
		r.router = nil
	}
	r.mu.Unlock()

	if !empty {
		return
	}

	c.mu.Lock()
	if cur, ok := c.rooms[r.channelID]; ok && cur == r {
		delete(c.rooms, r.channelID)
	}
	c.mu.Unlock()

	if router != nil {
		router.Close()
	}
}

func (c *Controller) LifecycleState(channelID, userID string) LifecycleState {
	r := c.roomFor(channelID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.participants[userID]; ok {
		return s.State
	}
	return LifecycleNotInVoice
}

// BeginJoin transitions a user from not_in_voice to joining, lazily
// creating the room (and its router) on first join.
func (c *Controller) BeginJoin(channelID, userID string, muted, deafened bool) error {
	// A user holds at most one active VoiceState across every voice channel
	// (spec.md §3): joining a second one vacates whichever other channel
	// they were still in, SFU cleanup included, before they're admitted here.
	for _, other := range c.ActiveChannels(userID) {
		if other != channelID {
			c.Leave(other, userID)
		}
	}

	r := c.roomFor(channelID)

	r.mu.Lock()
	existing, ok := r.participants[userID]
	state := LifecycleNotInVoice
	if ok {
		state = existing.State
	}
	if !isValidTransition(state, LifecycleJoining) {
		r.mu.Unlock()
		return apperr.New(apperr.Invalid, "cannot join voice from current state")
	}

	needsRouter := r.router == nil
	r.participants[userID] = &Session{State: LifecycleJoining, Muted: muted, Deafened: deafened}
	r.mu.Unlock()

	if needsRouter && c.routerFactory != nil {
		router, err := c.routerFactory(channelID)
		if err != nil {
			c.DiscardSession(channelID, userID)
			return fmt.Errorf("creating voice router: %w", err)
		}
		r.mu.Lock()
		if r.router == nil {
			r.router = router
		} else {
			router.Close()
		}
		r.mu.Unlock()
	}

	return nil
}

// ActivateSession transitions joining -> active, called once SFU signaling
// completes.
func (c *Controller) ActivateSession(channelID, userID string) (*Session, error) {
	r := c.roomFor(channelID)
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.participants[userID]
	if !ok || !isValidTransition(s.State, LifecycleActive) {
		return nil, apperr.New(apperr.Invalid, "cannot activate voice session from current state")
	}
	s.State = LifecycleActive

	c.bus.Publish(bus.Channel(channelID), bus.Event{
		Name: "VOICE_STATE_UPDATE",
		Payload: map[string]any{
			"channel_id": channelID,
			"user_id":    userID,
			"in_voice":   true,
			"muted":      s.Muted,
			"deafened":   s.Deafened,
			"transition": "joined",
		},
	})

	cp := *s
	return &cp, nil
}

// DiscardSession removes a session that never made it past joining (e.g.
// SFU peer setup failed), without emitting a left-voice event.
func (c *Controller) DiscardSession(channelID, userID string) {
	r := c.roomFor(channelID)
	r.mu.Lock()
	delete(r.participants, userID)
	r.mu.Unlock()

	c.releaseIfEmpty(r)
}

// Leave transitions active/joining -> leaving -> not_in_voice, removes the
// participant, and broadcasts the departure.
func (c *Controller) Leave(channelID, userID string) (removed bool) {
	r := c.roomFor(channelID)

	r.mu.Lock()
	s, ok := r.participants[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if !isValidTransition(s.State, LifecycleLeaving) {
		r.mu.Unlock()
		return false
	}
	delete(r.participants, userID)
	router := r.router
	r.mu.Unlock()

	// Tear down this user's transports whether or not the room itself
	// empties out — releaseIfEmpty only closes the router once every
	// participant is gone, but a departing user's own transports must
	// never outlive their session (spec's per-session cleanup invariant).
	if router != nil {
		router.CloseUserTransports(userID)
	}

	c.releaseIfEmpty(r)

	c.bus.Publish(bus.Channel(channelID), bus.Event{
		Name: "VOICE_STATE_UPDATE",
		Payload: map[string]any{
			"channel_id": channelID,
			"user_id":    userID,
			"in_voice":   false,
			"muted":      false,
			"deafened":   false,
			"transition": "left",
		},
	})
	return true
}

// UpdateState applies a mute/deafen change for a participant already active
// in voice, broadcasting the result.
func (c *Controller) UpdateState(channelID, userID string, muted, deafened *bool) (*Session, error) {
	r := c.roomFor(channelID)
	r.mu.Lock()
	s, ok := r.participants[userID]
	if !ok || s.State != LifecycleActive {
		r.mu.Unlock()
		return nil, apperr.New(apperr.Invalid, "not active in this voice channel")
	}
	if muted != nil {
		s.Muted = *muted
	}
	if deafened != nil {
		s.Deafened = *deafened
	}
	cp := *s
	r.mu.Unlock()

	c.bus.Publish(bus.Channel(channelID), bus.Event{
		Name: "VOICE_STATE_UPDATE",
		Payload: map[string]any{
			"channel_id": channelID,
			"user_id":    userID,
			"in_voice":   true,
			"muted":      cp.Muted,
			"deafened":   cp.Deafened,
			"transition": "updated",
		},
	})
	return &cp, nil
}

func (c *Controller) UpdateSpeaking(channelID, userID string, speaking bool) {
	r := c.roomFor(channelID)
	r.mu.Lock()
	s, ok := r.participants[userID]
	if ok {
		s.Speaking = speaking
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	c.bus.Publish(bus.Channel(channelID), bus.Event{
		Name:    "VOICE_SPEAKING",
		Payload: map[string]any{"channel_id": channelID, "user_id": userID, "speaking": speaking},
	})
}

func (c *Controller) UpdateScreenShare(channelID, userID string, streaming bool) {
	r := c.roomFor(channelID)
	r.mu.Lock()
	s, ok := r.participants[userID]
	if ok {
		s.ScreenShare = streaming
	}
	router := r.router
	r.mu.Unlock()
	if !ok {
		return
	}

	if !streaming && router != nil {
		router.CloseProducer(userID, "screen")
	}

	c.bus.Publish(bus.Channel(channelID), bus.Event{
		Name:    "SCREEN_SHARE_UPDATE",
		Payload: map[string]any{"channel_id": channelID, "user_id": userID, "streaming": streaming},
	})
}

func (c *Controller) UpdateCameraShare(channelID, userID string, streaming bool) {
	r := c.roomFor(channelID)
	r.mu.Lock()
	s, ok := r.participants[userID]
	if ok {
		s.CameraShare = streaming
	}
	router := r.router
	r.mu.Unlock()
	if !ok {
		return
	}

	if !streaming && router != nil {
		router.CloseProducer(userID, "camera")
	}

	c.bus.Publish(bus.Channel(channelID), bus.Event{
		Name:    "CAMERA_SHARE_UPDATE",
		Payload: map[string]any{"channel_id": channelID, "user_id": userID, "streaming": streaming},
	})
}

// ActiveChannels returns every voice channel the user currently holds a
// session in (joining, active, or leaving), so a disconnecting transport
// can be cleaned out of all of them without the caller needing to already
// know which rooms it was in.
func (c *Controller) ActiveChannels(userID string) []string {
	c.mu.Lock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	var channelIDs []string
	for _, r := range rooms {
		r.mu.Lock()
		_, ok := r.participants[userID]
		r.mu.Unlock()
		if ok {
			channelIDs = append(channelIDs, r.channelID)
		}
	}
	return channelIDs
}

// ParticipantIDs returns the userIDs of everyone currently in the room,
// excluding excludeUserID if non-empty.
func (c *Controller) ParticipantIDs(channelID, excludeUserID string) []string {
	r := c.roomFor(channelID)
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		if id != excludeUserID {
			ids = append(ids, id)
		}
	}
	return ids
}
