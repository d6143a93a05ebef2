package midi

import (
	"sync"

	"go.uber.org/zap"
)

// Mapping is the partial function from logical controls to physical message
// keys, with an always-consistent reverse index. A physical key binds at
// most one control: binding it again moves it.
type Mapping struct {
	mu       sync.Mutex
	log      *zap.Logger
	forward  map[Control]Key
	reverse  map[Key]Control
	learning *Control
	changed  func() // persistence hook
}

// NewMapping creates an empty mapping.
func NewMapping(log *zap.Logger) *Mapping {
	return &Mapping{
		log:     log.Named("midi"),
		forward: make(map[Control]Key),
		reverse: make(map[Key]Control),
	}
}

// OnChange registers a callback fired after every mapping mutation; the
// persistence layer hangs off this.
func (m *Mapping) OnChange(fn func()) {
	m.mu.Lock()
	m.changed = fn
	m.mu.Unlock()
}

// Bind maps a control to a physical key. Any control previously bound to
// that key is unbound first, so the key addresses exactly one control.
func (m *Mapping) Bind(c Control, k Key) {
	if !c.Valid() {
		return
	}
	m.mu.Lock()
	if prev, ok := m.reverse[k]; ok && prev != c {
		delete(m.forward, prev)
	}
	m.forward[c] = k
	m.rebuildReverseLocked()
	changed := m.changed
	m.mu.Unlock()
	m.log.Debug("bound", zap.String("control", string(c)), zap.String("key", k.String()))
	if changed != nil {
		changed()
	}
}

// Unbind removes a control's binding.
func (m *Mapping) Unbind(c Control) {
	m.mu.Lock()
	delete(m.forward, c)
	m.rebuildReverseLocked()
	changed := m.changed
	m.mu.Unlock()
	if changed != nil {
		changed()
	}
}

// rebuildReverseLocked derives the reverse index from the forward map. It is
// rebuilt from scratch every time so stale entries cannot survive a
// remapping. Must hold mu.
func (m *Mapping) rebuildReverseLocked() {
	m.reverse = make(map[Key]Control, len(m.forward))
	for c, k := range m.forward {
		m.reverse[k] = c
	}
}

// Lookup resolves a physical key to its bound control.
func (m *Mapping) Lookup(k Key) (Control, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.reverse[k]
	return c, ok
}

// KeyFor resolves a control to its bound physical key.
func (m *Mapping) KeyFor(c Control) (Key, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.forward[c]
	return k, ok
}

// BeginLearn arms learn mode: the next incoming message is captured and
// bound to the control.
func (m *Mapping) BeginLearn(c Control) {
	if !c.Valid() {
		return
	}
	m.mu.Lock()
	m.learning = &c
	m.mu.Unlock()
	m.log.Info("learn armed", zap.String("control", string(c)))
}

// CancelLearn disarms learn mode.
func (m *Mapping) CancelLearn() {
	m.mu.Lock()
	m.learning = nil
	m.mu.Unlock()
}

// Learning returns the control awaiting a message, if learn mode is armed.
func (m *Mapping) Learning() (Control, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.learning == nil {
		return "", false
	}
	return *m.learning, true
}

// Route consumes an incoming message. In learn mode the message is captured,
// bound to the awaiting control and learn mode exits (learned = true,
// nothing is dispatched). Otherwise the reverse index resolves the message
// to its control, if any.
func (m *Mapping) Route(msg Message) (c Control, learned, bound bool) {
	m.mu.Lock()
	if m.learning != nil {
		target := *m.learning
		m.learning = nil
		m.mu.Unlock()
		m.Bind(target, msg.Key)
		return target, true, false
	}
	c, bound = m.reverse[msg.Key]
	m.mu.Unlock()
	return c, false, bound
}

// Export returns the forward map keyed by the persistence encoding.
func (m *Mapping) Export() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.forward))
	for c, k := range m.forward {
		out[string(c)] = k.String()
	}
	return out
}

// Import replaces the mapping from a persisted snapshot, dropping entries
// that no longer parse or name unknown controls.
func (m *Mapping) Import(data map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forward = make(map[Control]Key, len(data))
	m.reverse = make(map[Key]Control, len(data))
	for name, enc := range data {
		c := Control(name)
		if !c.Valid() {
			m.log.Warn("dropping unknown control", zap.String("control", name))
			continue
		}
		k, err := ParseKey(enc)
		if err != nil {
			m.log.Warn("dropping unparseable binding", zap.String("control", name), zap.Error(err))
			continue
		}
		// Last write wins if two persisted controls claim one key.
		if prev, ok := m.reverse[k]; ok {
			delete(m.forward, prev)
		}
		m.forward[c] = k
		m.rebuildReverseLocked()
	}
}
