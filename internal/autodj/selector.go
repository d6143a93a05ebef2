package autodj

import (
	"math"
	"math/rand"

	"github.com/spindeck/spindeck/internal/library"
)

// EnergyFlow steers the energy direction of successive picks.
type EnergyFlow int

const (
	EnergyAny EnergyFlow = iota
	EnergyUp
	EnergyDown
)

// Source selects where the next track comes from.
type Source int

const (
	SourceLibrary Source = iota
	SourceQueue
)

// Settings is the Auto-DJ configuration record.
type Settings struct {
	Style             Style      `json:"style"`
	Duration          float64    `json:"duration"` // seconds
	Trigger           float64    `json:"trigger"`  // seconds before track end
	Source            Source     `json:"source"`
	Shuffle           bool       `json:"shuffle"`
	Harmonic          bool       `json:"harmonic"`
	GenreMatch        bool       `json:"genreMatch"`
	BPMWindow         float64    `json:"bpmWindow"` // 0 disables
	AvoidArtistRepeat bool       `json:"avoidArtistRepeat"`
	AutoGain          bool       `json:"autoGain"`
	BeatMatch         bool       `json:"beatMatch"`
	EnergyFlow        EnergyFlow `json:"energyFlow"`
}

// DefaultSettings returns the out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		Style:    StyleAutomatic,
		Duration: 8,
		Trigger:  15,
		Shuffle:  true,
		AutoGain: true,
	}
}

// selectNext picks the next track from the library's native order. Candidate
// pools fall back through four tiers, each engaged only when the previous
// produced nothing:
//
//  1. tracks never played this session
//  2. tracks outside the most recently played half of history
//  3. anything except the current and excluded track
//  4. the whole library minus the excluded track, then the whole library
//
// The surviving pool is then narrowed by the soft criteria in a fixed order;
// a criterion that would empty the pool is skipped instead.
func selectNext(tracks []library.Track, history []string, current *library.Track, excludeID string, s Settings, rng *rand.Rand) (library.Track, bool) {
	if len(tracks) == 0 {
		return library.Track{}, false
	}

	played := make(map[string]bool, len(history))
	for _, id := range history {
		played[id] = true
	}
	currentID := ""
	if current != nil {
		currentID = current.ID
	}
	blocked := func(t library.Track) bool {
		return t.ID == currentID || (excludeID != "" && t.ID == excludeID)
	}

	pool := keep(tracks, func(t library.Track) bool { return !played[t.ID] && !blocked(t) })
	if len(pool) == 0 && len(tracks) > 1 {
		recent := make(map[string]bool, len(history)/2)
		for _, id := range history[:len(history)/2] {
			recent[id] = true
		}
		pool = keep(tracks, func(t library.Track) bool { return !recent[t.ID] && !blocked(t) })
	}
	if len(pool) == 0 {
		pool = keep(tracks, func(t library.Track) bool { return !blocked(t) })
	}
	if len(pool) == 0 {
		pool = keep(tracks, func(t library.Track) bool { return excludeID == "" || t.ID != excludeID })
	}
	if len(pool) == 0 {
		pool = tracks
	}

	if current != nil {
		cur := *current
		if s.EnergyFlow != EnergyAny {
			pool = narrow(pool, func(t library.Track) bool {
				if s.EnergyFlow == EnergyUp {
					return t.Energy >= cur.Energy
				}
				return t.Energy <= cur.Energy
			})
		}
		if s.AvoidArtistRepeat && cur.Artist != "" {
			pool = narrow(pool, func(t library.Track) bool { return t.Artist != cur.Artist })
		}
		if s.BPMWindow > 0 {
			pool = narrow(pool, func(t library.Track) bool {
				return math.Abs(t.BPM-cur.BPM) <= s.BPMWindow
			})
		}
		if s.GenreMatch {
			pool = narrow(pool, func(t library.Track) bool { return t.Genre == cur.Genre })
		}
		if s.Harmonic {
			pool = narrow(pool, func(t library.Track) bool { return Compatible(cur.Key, t.Key) })
		}
	}

	if s.Shuffle {
		return pool[rng.Intn(len(pool))], true
	}

	// Walk the full library circularly starting just after the current
	// track and take the first pool member encountered.
	inPool := make(map[string]bool, len(pool))
	for _, t := range pool {
		inPool[t.ID] = true
	}
	start := 0
	for i, t := range tracks {
		if t.ID == currentID {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(tracks); i++ {
		t := tracks[(start+i)%len(tracks)]
		if inPool[t.ID] {
			return t, true
		}
	}
	return pool[0], true
}

func keep(in []library.Track, pred func(library.Track) bool) []library.Track {
	var out []library.Track
	for _, t := range in {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// narrow applies a soft criterion: keeps the narrowed pool only when it is
// non-empty.
func narrow(pool []library.Track, pred func(library.Track) bool) []library.Track {
	n := keep(pool, pred)
	if len(n) == 0 {
		return pool
	}
	return n
}
