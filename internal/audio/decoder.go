package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
)

// ErrDecode marks a corrupt or unsupported audio asset. A failed decode is
// reported per-load and never affects other decks.
var ErrDecode = errors.New("audio decode failed")

// DecodeFile runs FFmpeg to decode an audio file into interleaved stereo
// float32 samples at 48kHz.
func DecodeFile(path string) ([]float32, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg decode %s: %v", ErrDecode, path, err)
	}
	if len(out) < FrameBytes {
		return nil, fmt.Errorf("%w: %s produced no audio", ErrDecode, path)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]float32, len(out)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768
	}

	return samples, nil
}
