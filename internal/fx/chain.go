package fx

import (
	"sync"
)

// Chain owns one instance of every unit and splices the active subset into
// the FX entry -> units -> output path. Whenever the active set changes the
// whole chain is rebuilt in canonical bank order -- activation order is
// never preserved.
type Chain struct {
	mu       sync.Mutex
	units    [NumUnits]Unit
	settings [NumUnits]Settings
	active   [NumUnits]bool
	order    []Unit
	bpm      float64
}

// NewChain creates the bank with every unit inactive at default settings.
func NewChain() *Chain {
	c := &Chain{bpm: 120}
	for k := UnitKind(0); k < NumUnits; k++ {
		c.units[k] = newUnit(k)
		c.settings[k] = DefaultSettings()
		c.units[k].Apply(c.settings[k], c.bpm)
	}
	return c
}

// SetActive inserts or removes a unit and rebuilds the chain.
func (c *Chain) SetActive(kind UnitKind, on bool) {
	if kind < 0 || kind >= NumUnits {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[kind] == on {
		return
	}
	c.active[kind] = on
	if on {
		// Units enter the chain with clean internal state.
		c.units[kind].Reset()
	}
	c.rebuild()
}

// Toggle flips a unit and returns its new state.
func (c *Chain) Toggle(kind UnitKind) bool {
	if kind < 0 || kind >= NumUnits {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[kind] = !c.active[kind]
	if c.active[kind] {
		c.units[kind].Reset()
	}
	c.rebuild()
	return c.active[kind]
}

// rebuild regenerates the processing order. Must hold mu.
func (c *Chain) rebuild() {
	c.order = c.order[:0]
	for k := UnitKind(0); k < NumUnits; k++ {
		if c.active[k] {
			c.order = append(c.order, c.units[k])
		}
	}
}

// Active returns the active kinds in canonical order.
func (c *Chain) Active() []UnitKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]UnitKind, 0, len(c.order))
	for k := UnitKind(0); k < NumUnits; k++ {
		if c.active[k] {
			out = append(out, k)
		}
	}
	return out
}

// IsActive reports whether a unit is in the chain.
func (c *Chain) IsActive(kind UnitKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return kind >= 0 && kind < NumUnits && c.active[kind]
}

// Apply stores and pushes a unit's settings. Values stay in the normalized
// 0-100 domain; the unit derives physical units itself.
func (c *Chain) Apply(kind UnitKind, s Settings) {
	if kind < 0 || kind >= NumUnits {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings[kind] = s
	c.units[kind].Apply(s, c.bpm)
}

// SettingsFor returns a unit's stored settings.
func (c *Chain) SettingsFor(kind UnitKind) Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind < 0 || kind >= NumUnits {
		return DefaultSettings()
	}
	return c.settings[kind]
}

// SetTempo updates the tempo feeding synced parameters and re-applies any
// unit that derives a parameter from it.
func (c *Chain) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bpm = bpm
	for k := UnitKind(0); k < NumUnits; k++ {
		if c.settings[k].TempoSync {
			c.units[k].Apply(c.settings[k], bpm)
		}
	}
}

// Process runs a frame through the active units in canonical order.
func (c *Chain) Process(buf []float32) {
	c.mu.Lock()
	order := c.order
	c.mu.Unlock()
	for _, u := range order {
		u.Process(buf)
	}
}

// --- presets ---

// PresetUnit is one unit's snapshot inside a saved chain.
type PresetUnit struct {
	Unit     string   `json:"unit"`
	Settings Settings `json:"settings"`
}

// Preset is a named ordered set of active units plus their settings,
// persisted externally and applied atomically.
type Preset struct {
	Name  string       `json:"name"`
	Units []PresetUnit `json:"units"`
}

// Capture snapshots the current active set and settings.
func (c *Chain) Capture(name string) Preset {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := Preset{Name: name}
	for k := UnitKind(0); k < NumUnits; k++ {
		if c.active[k] {
			p.Units = append(p.Units, PresetUnit{Unit: k.String(), Settings: c.settings[k]})
		}
	}
	return p
}

// ApplyPreset replaces the whole chain with the preset's contents in one
// rebuild. Unknown unit names are skipped.
func (c *Chain) ApplyPreset(p Preset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.active {
		c.active[k] = false
	}
	for _, pu := range p.Units {
		k, ok := KindFromString(pu.Unit)
		if !ok {
			continue
		}
		c.active[k] = true
		c.settings[k] = pu.Settings
		c.units[k].Reset()
		c.units[k].Apply(pu.Settings, c.bpm)
	}
	c.rebuild()
}

// KindFromString resolves a unit's persisted name back to its kind.
func KindFromString(name string) (UnitKind, bool) {
	for k := UnitKind(0); k < NumUnits; k++ {
		if unitNames[k] == name {
			return k, true
		}
	}
	return 0, false
}
