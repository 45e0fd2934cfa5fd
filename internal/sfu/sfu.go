// Package sfu is the SFU Control Plane: router/transport/producer/consumer
// primitives built on pion/webrtc/v4's ORTC layer, replacing the teacher's
// one-full-mesh-PeerConnection-per-user design with the explicit REST
// surface the spec names (router_rtp_capabilities, create_transport,
// connect_transport, produce, consume, list_producers, delete_transport).
package sfu

import (
	"fmt"
	"runtime"
	"sync"

	"relay/internal/bus"
	"relay/internal/voice"
)

// Manager owns the worker pool and every channel's Router, and satisfies
// voice.RouterFactory so the Voice Room Controller can create/close routers
// without importing this package's concrete types.
type Manager struct {
	pool *pool
	bus  *bus.Bus
	turn TURNConfig

	mu      sync.Mutex
	routers map[string]*Router
}

func NewManager(cfg *Config, turn TURNConfig, eventBus *bus.Bus) (*Manager, error) {
	count := cfg.WorkerCount
	if count <= 0 {
		count = runtime.NumCPU()
	}
	p, err := newPool(cfg, count)
	if err != nil {
		return nil, fmt.Errorf("starting sfu worker pool: %w", err)
	}

	return &Manager{
		pool:    p,
		bus:     eventBus,
		turn:    turn,
		routers: make(map[string]*Router),
	}, nil
}

// RouterFactory adapts Manager.CreateRouter to voice.RouterFactory's
// signature, so the Voice Room Controller can be constructed with
// m.RouterFactory as its only dependency on this package.
func (m *Manager) RouterFactory(channelID string) (voice.Router, error) {
	return m.CreateRouter(channelID)
}

// CreateRouter homes a new router for channelID on the least-loaded worker.
// Idempotent: a second call for an already-open channel returns the
// existing router rather than creating a duplicate.
func (m *Manager) CreateRouter(channelID string) (*Router, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.routers[channelID]; ok {
		return r, nil
	}

	w := m.pool.leastLoaded()
	r := newRouter(channelID, w, m.bus, m.forgetRouter)
	m.routers[channelID] = r
	return r, nil
}

func (m *Manager) Router(channelID string) (*Router, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routers[channelID]
	return r, ok
}

// ICEServers returns the ICE server list a client should configure its
// transports with, minted fresh per user so TURN credentials are scoped and
// time-limited.
func (m *Manager) ICEServers(userID string) []ICEServerInfo {
	return BuildICEServers(m.turn, userID)
}

// forgetRouter drops Manager's reference to a closed router; called once
// voice.Controller has released the last participant and closed it via the
// voice.Router interface.
func (m *Manager) forgetRouter(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routers, channelID)
}
