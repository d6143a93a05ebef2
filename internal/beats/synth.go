package beats

import (
	"math"

	"github.com/spindeck/spindeck/internal/audio"
)

// Sounds lists every procedural patch the synth can render. There are no
// sample assets; each pad sound is generated on first trigger.
func Sounds() []string {
	return []string{
		"kick", "snare", "hat-closed", "hat-open",
		"tom-low", "tom-mid", "tom-high", "cymbal", "clap",
		"horn", "laser", "airhorn-clap", "scratch",
	}
}

// Synthesize renders a patch into an interleaved stereo buffer. Unknown
// names return nil.
func Synthesize(name string) []float32 {
	switch name {
	case "kick":
		return kick()
	case "snare":
		return snare()
	case "hat-closed":
		return hat(0.05)
	case "hat-open":
		return hat(0.3)
	case "tom-low":
		return tom(90)
	case "tom-mid":
		return tom(140)
	case "tom-high":
		return tom(200)
	case "cymbal":
		return cymbal()
	case "clap", "airhorn-clap":
		return clap()
	case "horn":
		return horn()
	case "laser":
		return laser()
	case "scratch":
		return scratchFX()
	default:
		return nil
	}
}

func render(seconds float64, sample func(t float64) float64) []float32 {
	n := int(seconds * audio.SampleRate)
	buf := make([]float32, n*audio.Channels)
	for i := 0; i < n; i++ {
		s := float32(sample(float64(i) / audio.SampleRate))
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf[i*audio.Channels] = s
		buf[i*audio.Channels+1] = s
	}
	return buf
}

var noiseSeed uint32 = 0x2545f491

func whiteNoise() float64 {
	noiseSeed ^= noiseSeed << 13
	noiseSeed ^= noiseSeed >> 17
	noiseSeed ^= noiseSeed << 5
	return float64(int32(noiseSeed)) / math.MaxInt32
}

// kick is a sine with a fast pitch drop from 120 to 40 Hz.
func kick() []float32 {
	phase := 0.0
	return render(0.35, func(t float64) float64 {
		freq := 40 + 80*math.Exp(-t*30)
		phase += 2 * math.Pi * freq / audio.SampleRate
		return 0.9 * math.Exp(-t*9) * math.Sin(phase)
	})
}

// snare layers a 180 Hz body under a noise burst.
func snare() []float32 {
	return render(0.22, func(t float64) float64 {
		body := 0.4 * math.Exp(-t*35) * math.Sin(2*math.Pi*180*t)
		rattle := 0.5 * math.Exp(-t*20) * whiteNoise()
		return body + rattle
	})
}

// hat is bright noise; the decay length is the only difference between the
// closed and open variants.
func hat(length float64) []float32 {
	prev := 0.0
	return render(length, func(t float64) float64 {
		// One-pole high-pass keeps only the sizzle.
		n := whiteNoise()
		hp := n - prev
		prev = n
		return 0.5 * math.Exp(-t*(6/length)) * hp
	})
}

// tom is a pitch-dropping sine with a touch of noise at the attack.
func tom(base float64) []float32 {
	phase := 0.0
	return render(0.3, func(t float64) float64 {
		freq := base * (1 + 0.5*math.Exp(-t*25))
		phase += 2 * math.Pi * freq / audio.SampleRate
		hit := 0.15 * math.Exp(-t*90) * whiteNoise()
		return 0.7*math.Exp(-t*12)*math.Sin(phase) + hit
	})
}

// cymbal stacks inharmonic partials under a long noise wash.
func cymbal() []float32 {
	partials := []float64{317, 523, 811, 1307, 2113, 3411}
	return render(1.0, func(t float64) float64 {
		var metal float64
		for _, f := range partials {
			metal += math.Sin(2 * math.Pi * f * t)
		}
		metal /= float64(len(partials))
		wash := whiteNoise()
		return 0.4 * math.Exp(-t*4) * (0.5*metal + 0.5*wash)
	})
}

// clap is three noise bursts 10 ms apart with a short tail.
func clap() []float32 {
	return render(0.25, func(t float64) float64 {
		env := 0.0
		for i := 0; i < 3; i++ {
			onset := float64(i) * 0.01
			if t >= onset {
				env = math.Max(env, math.Exp(-(t-onset)*60))
			}
		}
		tail := 0.3 * math.Exp(-t*15)
		return 0.6 * math.Max(env, tail) * whiteNoise()
	})
}

// horn is a detuned sawtooth stack with vibrato; the stadium air horn.
func horn() []float32 {
	saw := func(phase float64) float64 {
		return 1.6 * (phase - math.Floor(phase+0.5))
	}
	return render(0.7, func(t float64) float64 {
		vibrato := 1 + 0.01*math.Sin(2*math.Pi*6*t)
		f := 440.0 * vibrato
		env := math.Min(t*40, 1) * math.Exp(-math.Max(t-0.45, 0)*12)
		return 0.35 * env * (saw(f*t) + saw(f*1.01*t) + saw(f*0.5*t))
	})
}

// laser is a fast exponential sweep from 3 kHz down to 200 Hz.
func laser() []float32 {
	phase := 0.0
	return render(0.3, func(t float64) float64 {
		freq := 3000 * math.Pow(200.0/3000, t/0.3)
		phase += 2 * math.Pi * freq / audio.SampleRate
		return 0.6 * math.Exp(-t*6) * math.Sin(phase)
	})
}

// scratchFX is band-swept noise with a back-and-forth amplitude wobble.
func scratchFX() []float32 {
	phase := 0.0
	return render(0.4, func(t float64) float64 {
		sweep := 800 + 1200*math.Abs(math.Sin(2*math.Pi*5*t))
		phase += 2 * math.Pi * sweep / audio.SampleRate
		tone := math.Sin(phase)
		wobble := 0.5 + 0.5*math.Sin(2*math.Pi*11*t)
		return 0.5 * math.Exp(-t*5) * wobble * (0.6*whiteNoise() + 0.4*tone)
	})
}
