package stream

import (
	"testing"
)

// --- fan-out ---

func TestPublishReachesAllListeners(t *testing.T) {
	b := NewBroadcaster("master")
	l1 := b.Subscribe()
	l2 := b.Subscribe()
	defer b.Unsubscribe(l1)
	defer b.Unsubscribe(l2)

	frame := []int16{1, 2, 3, 4}
	b.Publish(frame)

	for i, l := range []*Listener{l1, l2} {
		select {
		case got := <-l.C:
			if len(got) != len(frame) || got[0] != 1 {
				t.Errorf("listener %d: got %v, want %v", i, got, frame)
			}
		default:
			t.Errorf("listener %d received nothing", i)
		}
	}
}

func TestPublishWithNoListeners(t *testing.T) {
	b := NewBroadcaster("cue")
	b.Publish([]int16{0, 0}) // must not panic or block
}

// --- slow listeners ---

func TestSlowListenerDropsFramesWithoutBlocking(t *testing.T) {
	b := NewBroadcaster("master")
	l := b.Subscribe()
	defer b.Unsubscribe(l)

	// Fill well past the buffer. Publish must never block.
	for i := 0; i < 400; i++ {
		b.Publish([]int16{int16(i)})
	}

	if n := len(l.C); n != cap(l.C) {
		t.Errorf("buffer holds %d frames, want full at %d", n, cap(l.C))
	}

	// Oldest frames survive, the newest were dropped.
	first := <-l.C
	if first[0] != 0 {
		t.Errorf("first buffered frame = %d, want 0", first[0])
	}
}

// --- subscription lifecycle ---

func TestUnsubscribeSignalsDone(t *testing.T) {
	b := NewBroadcaster("master")
	l := b.Subscribe()
	b.Unsubscribe(l)

	select {
	case <-l.done:
	default:
		t.Fatal("done channel not closed after unsubscribe")
	}
}

func TestUnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroadcaster("master")
	l := b.Subscribe()
	b.Unsubscribe(l)
	b.Unsubscribe(l) // must not panic on the closed done channel
}

func TestListenerCount(t *testing.T) {
	b := NewBroadcaster("master")
	if n := b.ListenerCount(); n != 0 {
		t.Fatalf("fresh broadcaster has %d listeners", n)
	}
	l1 := b.Subscribe()
	l2 := b.Subscribe()
	if n := b.ListenerCount(); n != 2 {
		t.Errorf("ListenerCount = %d, want 2", n)
	}
	b.Unsubscribe(l1)
	if n := b.ListenerCount(); n != 1 {
		t.Errorf("ListenerCount after unsubscribe = %d, want 1", n)
	}
	b.Unsubscribe(l2)
	if n := b.ListenerCount(); n != 0 {
		t.Errorf("ListenerCount after both = %d, want 0", n)
	}
}
