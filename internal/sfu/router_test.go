package sfu

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"relay/internal/bus"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	w, err := newWorker(0, &Config{})
	if err != nil {
		t.Fatalf("newWorker: %v", err)
	}
	return newRouter("chan-1", w, bus.New(), nil)
}

func TestRouterRTPCapabilitiesMatchesWorkerCodecs(t *testing.T) {
	r := newTestRouter(t)
	caps := r.RTPCapabilities()
	if len(caps) != len(r.worker.codecs) {
		t.Fatalf("expected %d codecs, got %d", len(r.worker.codecs), len(caps))
	}
}

func TestRouterProducerLifecycle(t *testing.T) {
	r := newTestRouter(t)

	p := &Producer{ID: "pr_1", transportID: "tr_1", userID: "user-1", kind: webrtc.RTPCodecTypeAudio, label: "mic"}
	r.RegisterProducer(p, "")

	got, ok := r.Producer("pr_1")
	if !ok || got.ID != "pr_1" {
		t.Fatal("expected registered producer to be retrievable")
	}

	list := r.ListProducers()
	if len(list) != 1 {
		t.Fatalf("expected 1 producer listed, got %d", len(list))
	}

	r.RemoveProducer("pr_1")
	if _, ok := r.Producer("pr_1"); ok {
		t.Fatal("expected producer to be gone after removal")
	}
}

func TestRouterCloseProducerByLabel(t *testing.T) {
	r := newTestRouter(t)

	mic := &Producer{ID: "pr_mic", transportID: "tr_1", userID: "user-1", kind: webrtc.RTPCodecTypeAudio, label: "mic"}
	screen := &Producer{ID: "pr_screen", transportID: "tr_2", userID: "user-1", kind: webrtc.RTPCodecTypeVideo, label: "screen"}
	r.RegisterProducer(mic, "")
	r.RegisterProducer(screen, "")

	r.CloseProducer("user-1", "screen")

	if _, ok := r.Producer("pr_screen"); ok {
		t.Fatal("expected screen producer to be closed")
	}
	if _, ok := r.Producer("pr_mic"); !ok {
		t.Fatal("expected mic producer to be untouched")
	}

	// no matching producer: must not panic or remove anything else
	r.CloseProducer("user-1", "camera")
	if _, ok := r.Producer("pr_mic"); !ok {
		t.Fatal("expected mic producer to remain after no-op close")
	}
}

func TestRouterCloseIsIdempotentAndReleasesWorker(t *testing.T) {
	w, err := newWorker(0, &Config{})
	if err != nil {
		t.Fatalf("newWorker: %v", err)
	}
	w.routerCount.Add(1)

	released := false
	r := newRouter("chan-1", w, bus.New(), func(string) { released = true })

	r.Close()
	r.Close() // must not panic or double-release

	if w.routerCount.Load() != 0 {
		t.Fatalf("expected worker router count back to 0, got %d", w.routerCount.Load())
	}
	if !released {
		t.Fatal("expected onClose callback to fire")
	}
}

func TestRouterCreateTransportRejectsAfterClose(t *testing.T) {
	r := newTestRouter(t)
	r.Close()

	if _, err := r.CreateTransport(DirectionSend, "user-1"); err != ErrRouterNotFound {
		t.Fatalf("expected ErrRouterNotFound after close, got %v", err)
	}
}

func TestCloseUserTransportsClosesOnlyTheOwnersTransports(t *testing.T) {
	r := newTestRouter(t)

	mine, err := r.CreateTransport(DirectionSend, "user-1")
	if err != nil {
		t.Fatalf("CreateTransport user-1: %v", err)
	}
	theirs, err := r.CreateTransport(DirectionSend, "user-2")
	if err != nil {
		t.Fatalf("CreateTransport user-2: %v", err)
	}

	p := &Producer{ID: "pr_1", transportID: mine.ID, userID: "user-1", label: "mic"}
	mine.registerProducer(p)
	r.RegisterProducer(p, "")

	other := &Producer{ID: "pr_2", transportID: theirs.ID, userID: "user-2", label: "mic"}
	theirs.registerProducer(other)
	r.RegisterProducer(other, "")

	r.CloseUserTransports("user-1")

	if _, ok := r.Transport(mine.ID); ok {
		t.Fatal("expected user-1's transport to be gone")
	}
	if _, ok := r.Producer("pr_1"); ok {
		t.Fatal("expected user-1's producer to be gone")
	}
	if !p.closed {
		t.Fatal("expected user-1's producer to be closed by the cascade")
	}

	if _, ok := r.Transport(theirs.ID); !ok {
		t.Fatal("expected user-2's transport to survive")
	}
	if _, ok := r.Producer("pr_2"); !ok {
		t.Fatal("expected user-2's producer to survive")
	}
	if other.closed {
		t.Fatal("expected user-2's producer to remain open")
	}

	// no transports for this user: must be a silent no-op
	r.CloseUserTransports("user-3")
	if _, ok := r.Transport(theirs.ID); !ok {
		t.Fatal("expected unrelated close call to leave user-2's transport untouched")
	}
}
