// Package mic is the live input boundary: an FFmpeg capture of a platform
// input device, delivered as 20ms frames for the talkover path. Capture
// failure leaves the feature inert; decks and the mixer are unaffected.
package mic

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"github.com/spindeck/spindeck/internal/audio"
	"go.uber.org/zap"
)

// Capture reads interleaved stereo float32 frames from an input device.
type Capture struct {
	log    *zap.Logger
	cancel context.CancelFunc
	stdout io.ReadCloser
	cmd    *exec.Cmd

	mu     sync.Mutex
	frame  []float32
	closed bool
}

// inputFormat picks FFmpeg's capture backend for the platform.
func inputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "alsa"
	}
}

// Open starts capturing from a device ("default" on most systems). Returns
// an error when the device cannot be opened; callers treat that as the
// feature being unavailable, not a fatal condition.
func Open(device string, log *zap.Logger) (*Capture, error) {
	if device == "" {
		device = "default"
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", inputFormat(),
		"-i", device,
		"-f", "s16le",
		"-ar", fmt.Sprint(audio.SampleRate),
		"-ac", fmt.Sprint(audio.Channels),
		"-loglevel", "error",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mic capture: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("mic capture: %w", err)
	}

	c := &Capture{
		log:    log.Named("mic").With(zap.String("device", device)),
		cancel: cancel,
		stdout: stdout,
		cmd:    cmd,
		frame:  make([]float32, audio.FrameSamples),
	}
	go c.readLoop()
	c.log.Info("mic capture started")
	return c, nil
}

// readLoop keeps the most recent captured frame; the render loop pulls it
// at its own pace, so stale input is overwritten rather than queued.
func (c *Capture) readLoop() {
	raw := make([]byte, audio.FrameBytes)
	pcm := make([]int16, audio.FrameSamples)
	for {
		if _, err := io.ReadFull(c.stdout, raw); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.closed = true
			c.mu.Unlock()
			if !closed {
				c.log.Warn("mic capture ended", zap.Error(err))
			}
			return
		}
		for i := range pcm {
			pcm[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		}
		c.mu.Lock()
		for i, s := range pcm {
			c.frame[i] = float32(s) / 32768
		}
		c.mu.Unlock()
	}
}

// ReadFrame copies the most recent captured frame into buf. Returns false
// once the capture has ended.
func (c *Capture) ReadFrame(buf []float32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	copy(buf, c.frame)
	return true
}

// Close stops the capture process.
func (c *Capture) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.cmd.Wait()
}
