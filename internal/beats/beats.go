// Package beats is the performance pad bank: three categories of twelve
// pads, each triggering a procedurally synthesized one-shot, persisted as a
// flat key-value kit.
package beats

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spindeck/spindeck/internal/store"
	"go.uber.org/zap"
)

// Categories are the fixed pad groups, in display order.
var Categories = [3]string{"drums", "percussion", "samples"}

// PadsPerCategory is the slot count per category.
const PadsPerCategory = 12

// kitNamespace is the store document holding the saved kit.
const kitNamespace = "beatkit"

// Pad is one slot. Only the descriptive fields persist; the rendered buffer
// is rebuilt on first trigger after a load.
type Pad struct {
	Label string  `json:"label"`
	Sound string  `json:"sound"`
	Gain  float64 `json:"gain"`

	buffer []float32
}

// Empty reports whether the slot is unassigned.
func (p Pad) Empty() bool { return p.Sound == "" }

// Bank owns the pad grid and its persistence.
type Bank struct {
	mu    sync.Mutex
	log   *zap.Logger
	store *store.Store
	pads  map[string][]Pad
}

// NewBank creates a bank and loads any saved kit; a missing or corrupt kit
// yields three empty categories.
func NewBank(st *store.Store, log *zap.Logger) *Bank {
	b := &Bank{log: log.Named("beats"), store: st}
	b.load()
	return b
}

func emptyKit() map[string][]Pad {
	kit := make(map[string][]Pad, len(Categories))
	for _, c := range Categories {
		kit[c] = make([]Pad, PadsPerCategory)
	}
	return kit
}

// load scans the flat key-value kit and buckets entries by category. Keys
// look like "drums-3"; entries with unknown categories or out-of-range
// indices are dropped.
func (b *Bank) load() {
	kit := emptyKit()
	var flat map[string]Pad
	if b.store != nil && b.store.Load(kitNamespace, &flat) {
		for key, pad := range flat {
			category, index, err := splitKey(key)
			if err != nil {
				b.log.Warn("dropping kit entry", zap.String("key", key), zap.Error(err))
				continue
			}
			kit[category][index] = pad
		}
	}
	b.mu.Lock()
	b.pads = kit
	b.mu.Unlock()
}

// Save persists the kit: the stored document is replaced wholesale with one
// entry per populated pad, so deleted pads do not linger.
func (b *Bank) Save() {
	if b.store == nil {
		return
	}
	b.mu.Lock()
	flat := make(map[string]Pad)
	for category, pads := range b.pads {
		for i, p := range pads {
			if !p.Empty() {
				flat[category+"-"+strconv.Itoa(i)] = Pad{Label: p.Label, Sound: p.Sound, Gain: p.Gain}
			}
		}
	}
	b.mu.Unlock()
	b.store.Save(kitNamespace, flat)
}

func splitKey(key string) (string, int, error) {
	cut := strings.LastIndexByte(key, '-')
	if cut < 0 {
		return "", 0, fmt.Errorf("malformed kit key %q", key)
	}
	category := key[:cut]
	valid := false
	for _, c := range Categories {
		if c == category {
			valid = true
			break
		}
	}
	if !valid {
		return "", 0, fmt.Errorf("unknown category in kit key %q", key)
	}
	index, err := strconv.Atoi(key[cut+1:])
	if err != nil || index < 0 || index >= PadsPerCategory {
		return "", 0, fmt.Errorf("bad pad index in kit key %q", key)
	}
	return category, index, nil
}

// SetPad assigns a slot and persists the kit.
func (b *Bank) SetPad(category string, index int, p Pad) error {
	b.mu.Lock()
	pads, ok := b.pads[category]
	if !ok || index < 0 || index >= PadsPerCategory {
		b.mu.Unlock()
		return fmt.Errorf("no pad %s-%d", category, index)
	}
	p.buffer = nil
	if p.Gain <= 0 {
		p.Gain = 1
	}
	pads[index] = p
	b.mu.Unlock()
	b.Save()
	return nil
}

// ClearPad empties a slot and persists the kit.
func (b *Bank) ClearPad(category string, index int) {
	b.mu.Lock()
	if pads, ok := b.pads[category]; ok && index >= 0 && index < PadsPerCategory {
		pads[index] = Pad{}
	}
	b.mu.Unlock()
	b.Save()
}

// Pad returns a slot's descriptor.
func (b *Bank) Pad(category string, index int) (Pad, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pads, ok := b.pads[category]
	if !ok || index < 0 || index >= PadsPerCategory {
		return Pad{}, false
	}
	return pads[index], true
}

// Kit returns a copy of the whole grid for the console.
func (b *Bank) Kit() map[string][]Pad {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]Pad, len(b.pads))
	for category, pads := range b.pads {
		out[category] = append([]Pad(nil), pads...)
	}
	return out
}

// Trigger returns the one-shot buffer for a pad, rendering it on first use.
// Empty or unknown-sound pads return nil.
func (b *Bank) Trigger(category string, index int) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	pads, ok := b.pads[category]
	if !ok || index < 0 || index >= PadsPerCategory {
		return nil
	}
	p := &pads[index]
	if p.Empty() {
		return nil
	}
	if p.buffer == nil {
		p.buffer = Synthesize(p.Sound)
		if p.buffer == nil {
			b.log.Warn("unknown pad sound", zap.String("sound", p.Sound))
			return nil
		}
		if p.Gain != 1 && p.Gain > 0 {
			for i := range p.buffer {
				p.buffer[i] *= float32(p.Gain)
			}
		}
	}
	return p.buffer
}
