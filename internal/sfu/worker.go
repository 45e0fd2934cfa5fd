package sfu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// worker is a logical execution lane: an API/MediaEngine instance plus a
// load counter used for least-loaded router placement. The spec's original
// SFU engine shards routers across OS worker processes; pion's engine runs
// in-process, so here a worker is an internal sharding unit rather than a
// subprocess — codec registration is still per-worker (grounded on the
// teacher's sfu.go New(), which registers Opus + VP9 once per engine).
type worker struct {
	id          int
	api         *webrtc.API
	settingEng  webrtc.SettingEngine
	codecs      []webrtc.RTPCodecParameters
	routerCount atomic.Int64
}

func newWorker(id int, cfg *Config) (*worker, error) {
	settingEngine := webrtc.SettingEngine{}

	if cfg.MinPort > 0 && cfg.MaxPort > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.MinPort, cfg.MaxPort); err != nil {
			return nil, fmt.Errorf("setting ephemeral port range: %w", err)
		}
	}
	if cfg.PublicIP != "" {
		settingEngine.SetNAT1To1IPs([]string{cfg.PublicIP}, webrtc.ICECandidateTypeHost)
	}

	opusCodec := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}
	vp9Codec := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeVP9,
			ClockRate:   90000,
			SDPFmtpLine: "profile-id=0",
		},
		PayloadType: 98,
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(opusCodec, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("registering opus codec: %w", err)
	}
	if err := mediaEngine.RegisterCodec(vp9Codec, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("registering vp9 codec: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithMediaEngine(mediaEngine),
	)

	return &worker{
		id:         id,
		api:        api,
		settingEng: settingEngine,
		codecs:     []webrtc.RTPCodecParameters{opusCodec, vp9Codec},
	}, nil
}

// pool is the worker pool (spec 4.F: "N workers, N = CPU count"); routers
// are homed on the least-loaded worker at creation time.
type pool struct {
	mu      sync.RWMutex
	workers []*worker
}

func newPool(cfg *Config, count int) (*pool, error) {
	if count <= 0 {
		count = 1
	}
	p := &pool{workers: make([]*worker, 0, count)}
	for i := 0; i < count; i++ {
		w, err := newWorker(i, cfg)
		if err != nil {
			return nil, fmt.Errorf("starting sfu worker %d: %w", i, err)
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// leastLoaded returns the worker with the fewest routers currently homed on
// it, incrementing its count; the caller must call release on router close.
func (p *pool) leastLoaded() *worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	best := p.workers[0]
	for _, w := range p.workers[1:] {
		if w.routerCount.Load() < best.routerCount.Load() {
			best = w
		}
	}
	best.routerCount.Add(1)
	return best
}

func (w *worker) release() {
	w.routerCount.Add(-1)
}
