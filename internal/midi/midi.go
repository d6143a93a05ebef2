// Package midi maps physical controller messages onto the console's fixed
// catalogue of logical controls. The browser relays raw Web MIDI bytes over
// the console channel; this layer owns the forward mapping, its derived
// reverse index and the learn-mode capture flow.
package midi

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageClass is the MIDI message family the binding layer cares about.
type MessageClass int

const (
	NoteOn MessageClass = iota
	NoteOff
	ControlChange
)

func (c MessageClass) String() string {
	switch c {
	case NoteOn:
		return "note-on"
	case NoteOff:
		return "note-off"
	default:
		return "cc"
	}
}

// Key is the identity of a physical message: class, channel and first data
// byte. Two messages with the same Key address the same physical knob or pad.
type Key struct {
	Class   MessageClass
	Channel uint8
	Data1   uint8
}

// String encodes the key for persistence, e.g. "cc:0:21".
func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Class, k.Channel, k.Data1)
}

// ParseKey inverts Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("malformed midi key %q", s)
	}
	var class MessageClass
	switch parts[0] {
	case "note-on":
		class = NoteOn
	case "note-off":
		class = NoteOff
	case "cc":
		class = ControlChange
	default:
		return Key{}, fmt.Errorf("unknown midi message class %q", parts[0])
	}
	ch, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Key{}, fmt.Errorf("malformed midi key %q", s)
	}
	d1, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return Key{}, fmt.Errorf("malformed midi key %q", s)
	}
	return Key{Class: class, Channel: uint8(ch), Data1: uint8(d1)}, nil
}

// Message is a parsed incoming MIDI message. Value is the velocity or
// controller value (0-127).
type Message struct {
	Key
	Value uint8
}

// Parse decodes a raw 3-byte MIDI message. Note-on with zero velocity is
// normalized to note-off. Returns false for message families the console
// does not bind.
func Parse(status, data1, data2 byte) (Message, bool) {
	channel := status & 0x0f
	var class MessageClass
	switch status & 0xf0 {
	case 0x90:
		class = NoteOn
		if data2 == 0 {
			class = NoteOff
		}
	case 0x80:
		class = NoteOff
	case 0xb0:
		class = ControlChange
	default:
		return Message{}, false
	}
	return Message{
		Key:   Key{Class: class, Channel: channel, Data1: data1},
		Value: data2,
	}, true
}

// Normalized returns the message value scaled to [0, 1].
func (m Message) Normalized() float64 {
	return float64(m.Value) / 127
}
