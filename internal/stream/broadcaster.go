// Package stream carries the console's monitor buses to browsers: a
// fan-out broadcaster fed by the render loop, a WebRTC/Opus handler for
// low-latency monitoring and a chunked MP3 fallback.
package stream

import (
	"sync"
)

// Broadcaster fans out PCM frames from one bus to N listeners. The render
// loop publishes one frame per tick; a slow listener has frames dropped
// rather than stalling the bus.
type Broadcaster struct {
	mu        sync.RWMutex
	name      string
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16 // buffered channel of 20ms PCM frames
	done chan struct{}
}

// NewBroadcaster creates a named broadcaster (master, cue).
func NewBroadcaster(name string) *Broadcaster {
	return &Broadcaster{
		name:      name,
		listeners: make(map[*Listener]struct{}),
	}
}

// Name returns the bus name.
func (b *Broadcaster) Name() string { return b.name }

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, present := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if present {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish fans a frame out to every listener without blocking the caller.
// Called from the render loop once per tick; the frame must not be mutated
// afterwards.
func (b *Broadcaster) Publish(frame []int16) {
	b.mu.RLock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
			// listener too slow, drop the frame to keep the bus moving
		}
	}
	b.mu.RUnlock()
}
