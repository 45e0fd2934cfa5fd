package wsio

import "testing"

func TestSocketSendDeliversToBufferedChannel(t *testing.T) {
	sock := newSocket(nil)
	defer close(sock.send)

	if ok := sock.Send([]byte("hello")); !ok {
		t.Fatal("expected Send to succeed against an open, unfull channel")
	}

	select {
	case got := <-sock.send:
		if string(got) != "hello" {
			t.Fatalf("expected %q, got %q", "hello", got)
		}
	default:
		t.Fatal("expected frame to be enqueued on send channel")
	}
}

func TestSocketSendFailsOnceClosedSignalFires(t *testing.T) {
	sock := newSocket(nil)
	defer close(sock.send)

	// Simulate the closed-channel side effect of Close() directly, since
	// Close() itself also touches the underlying (here nil) conn.
	close(sock.closed)

	if ok := sock.Send([]byte("hello")); ok {
		t.Fatal("expected Send to fail once the closed signal has fired")
	}
}

func TestSocketSendFailsWhenBufferIsFull(t *testing.T) {
	sock := newSocket(nil)
	defer close(sock.send)

	for i := 0; i < cap(sock.send); i++ {
		if ok := sock.Send([]byte("x")); !ok {
			t.Fatalf("expected buffer fill to succeed at index %d", i)
		}
	}

	if ok := sock.Send([]byte("overflow")); ok {
		t.Fatal("expected Send to report a dropped frame once the buffer is full")
	}
}
