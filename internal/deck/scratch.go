package deck

import (
	"math"

	"github.com/spindeck/spindeck/internal/audio"
)

// scratchState tracks an in-flight scratch gesture. The transport state it
// suspends is restored on the transport tick after the gesture ends.
type scratchState struct {
	wasPlaying    bool
	pendingResume bool
	snippet       *source
}

// snippetSeconds is the audible feedback length synthesized per drag step.
const snippetSeconds = 0.075

const scratchNoiseLevel = 0.12

// ScratchStart suspends normal transport and ramps in the scratch-noise
// bed. Re-entrant: a second start during a gesture is a no-op.
func (d *Deck) ScratchStart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil || d.status == StatusScratching {
		return
	}
	d.scratch.wasPlaying = d.status == StatusPlaying
	d.scratch.pendingResume = false
	d.stopSourceLocked()
	d.status = StatusScratching
	if c := d.chain(); c != nil {
		c.Noise.SetGain(scratchNoiseLevel)
	}
}

// ScratchMove applies one drag step: delta is the position change in
// seconds derived from pointer movement, velocity the gesture speed in
// track-seconds per real second. Each step re-anchors audibility with a
// fresh short snippet source at the new position and modulates the noise
// bed by velocity.
func (d *Deck) ScratchMove(delta, velocity float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusScratching {
		return
	}
	d.position = clamp(d.position+delta, 0, d.duration)

	if d.scratch.snippet != nil {
		d.scratch.snippet.stop()
	}
	rate := math.Abs(velocity)
	if rate < 0.25 {
		rate = 0.25
	} else if rate > 4 {
		rate = 4
	}
	snip := newSource(d.samples, d.position, rate)
	snip.limit = int(snippetSeconds * audio.SampleRate)
	d.scratch.snippet = snip

	if c := d.chain(); c != nil {
		speed := math.Min(math.Abs(velocity), 4)
		c.Noise.SetCenter(800 + speed*1500)
		c.Noise.SetGain(scratchNoiseLevel * (0.4 + 0.6*speed/4))
	}
}

// ScratchEnd finishes the gesture: noise ramps out, any snippet stops, and
// if the deck was playing before the gesture it resumes from the current
// position on the next transport tick.
func (d *Deck) ScratchEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusScratching {
		return
	}
	if c := d.chain(); c != nil {
		c.Noise.SetGain(0)
	}
	if d.scratch.snippet != nil {
		d.scratch.snippet.stop()
		d.scratch.snippet = nil
	}
	d.status = StatusStopped
	d.scratch.pendingResume = d.scratch.wasPlaying
	d.scratch.wasPlaying = false
}

// resumeAfterScratch restarts playback once the transport clock ticks; the
// fresh source re-anchors audio at the gesture's final position.
func (d *Deck) resumeAfterScratch() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.scratch.pendingResume || d.status != StatusStopped {
		d.scratch.pendingResume = false
		return false
	}
	d.scratch.pendingResume = false
	return d.playLocked() == nil
}
