package camera

import (
	"testing"
	"time"
)

func TestFeed_LatestAndLiveness(t *testing.T) {
	f := NewFeed(2 * time.Second)
	now := time.Now().UTC()

	if f.Live(now) {
		t.Error("empty feed reported live")
	}
	if _, err := f.Latest(); err != ErrNoFrame {
		t.Errorf("latest on empty feed: got %v, want ErrNoFrame", err)
	}

	f.Push(Frame{JPEG: []byte{0x1}, Width: 640, Height: 480, CapturedAt: now})
	if !f.Live(now.Add(time.Second)) {
		t.Error("fresh frame reported not live")
	}
	if f.Live(now.Add(5 * time.Second)) {
		t.Error("stale frame reported live")
	}

	got, err := f.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Width != 640 || got.Height != 480 {
		t.Errorf("latest frame dims: got %dx%d", got.Width, got.Height)
	}
}

func TestFeed_StatusGatesLiveness(t *testing.T) {
	f := NewFeed(time.Minute)
	now := time.Now().UTC()
	f.Push(Frame{JPEG: []byte{0x1}, CapturedAt: now})
	f.SetStatus(StatusPermissionDenied)
	if f.Live(now) {
		t.Error("feed live despite permission_denied status")
	}
	// A new frame implies the camera recovered.
	f.Push(Frame{JPEG: []byte{0x2}, CapturedAt: now})
	if !f.Live(now) {
		t.Error("feed not live after frame push cleared status")
	}
}

func TestFeed_BorrowRelease(t *testing.T) {
	f := NewFeed(time.Minute)
	if err := f.Borrow(); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := f.Borrow(); err != ErrFeedBusy {
		t.Errorf("second borrow: got %v, want ErrFeedBusy", err)
	}
	f.Release()
	if err := f.Borrow(); err != nil {
		t.Errorf("borrow after release: %v", err)
	}
}

func TestFeed_Close(t *testing.T) {
	f := NewFeed(time.Minute)
	f.Push(Frame{JPEG: []byte{0x1}, CapturedAt: time.Now().UTC()})
	f.Close()

	if !f.Closed() {
		t.Error("Closed() false after Close")
	}
	if _, err := f.Latest(); err != ErrFeedClosed {
		t.Errorf("latest after close: got %v, want ErrFeedClosed", err)
	}
	if err := f.Borrow(); err != ErrFeedClosed {
		t.Errorf("borrow after close: got %v, want ErrFeedClosed", err)
	}
	if f.Live(time.Now().UTC()) {
		t.Error("closed feed reported live")
	}
	f.Push(Frame{JPEG: []byte{0x2}})
	if _, err := f.Latest(); err != ErrFeedClosed {
		t.Error("push after close should be dropped")
	}
}
