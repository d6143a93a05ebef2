package deck

import (
	"github.com/spindeck/spindeck/internal/audio"
)

// source is one single-use playback cursor over a decoded buffer. Platform
// audio sources are single-use, and that contract is kept here: every
// start, seek and scratch snippet creates a fresh source, stopping the old
// one first, so audible position always re-anchors to a known sample.
type source struct {
	samples   []float32 // interleaved stereo, borrowed from the deck
	pos       float64   // fractional per-channel sample position
	rate      float64
	loop      bool
	loopStart float64 // per-channel sample positions
	loopEnd   float64
	stopped   bool

	// limit, when > 0, stops the source after that many output samples;
	// scratch snippets use it.
	limit int
	done  int
}

func newSource(samples []float32, startSeconds, rate float64) *source {
	return &source{
		samples: samples,
		pos:     startSeconds * audio.SampleRate,
		rate:    rate,
	}
}

func (s *source) stop() { s.stopped = true }

func (s *source) setLoop(active bool, startSec, endSec float64) {
	s.loop = active
	s.loopStart = startSec * audio.SampleRate
	s.loopEnd = endSec * audio.SampleRate
}

// frames returns the per-channel length of the decoded buffer.
func (s *source) frames() float64 {
	return float64(len(s.samples) / audio.Channels)
}

// mixInto adds the source's next n output frames into buf at the given
// gain, advancing the cursor by rate with linear interpolation. Returns
// false once the source has run out (end of buffer or snippet limit).
func (s *source) mixInto(buf []float32, gain float32) bool {
	if s.stopped {
		return false
	}
	total := s.frames()
	for i := 0; i < len(buf); i += audio.Channels {
		if s.loop && s.pos >= s.loopEnd && s.loopEnd > s.loopStart {
			// Platform-style loop flag: wrap inside the loop window.
			span := s.loopEnd - s.loopStart
			s.pos = s.loopStart + mod(s.pos-s.loopEnd, span)
		}
		if s.pos >= total-1 {
			s.stopped = true
			return false
		}
		idx := int(s.pos)
		frac := float32(s.pos - float64(idx))
		for c := 0; c < audio.Channels; c++ {
			a := s.samples[idx*audio.Channels+c]
			b := s.samples[(idx+1)*audio.Channels+c]
			buf[i+c] += (a*(1-frac) + b*frac) * gain
		}
		s.pos += s.rate
		s.done++
		if s.limit > 0 && s.done >= s.limit {
			s.stopped = true
			return false
		}
	}
	return true
}

func mod(x, m float64) float64 {
	if m <= 0 {
		return 0
	}
	r := x - float64(int(x/m))*m
	if r < 0 {
		r += m
	}
	return r
}
