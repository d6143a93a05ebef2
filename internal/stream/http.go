package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"

	"github.com/spindeck/spindeck/internal/audio"
	"go.uber.org/zap"
)

// HTTPHandler serves a bus as a chunked MP3 stream. Each connection spawns
// an FFmpeg process encoding PCM to MP3 in real time; this is the fallback
// monitor path for clients without WebRTC.
type HTTPHandler struct {
	broadcaster *Broadcaster
	log         *zap.Logger
	bitrateKb   int
}

// NewHTTPHandler creates an MP3 stream handler over a bus.
func NewHTTPHandler(b *Broadcaster, bitrateKb int, log *zap.Logger) *HTTPHandler {
	if bitrateKb <= 0 {
		bitrateKb = 192
	}
	return &HTTPHandler{
		broadcaster: b,
		log:         log.Named("mp3").With(zap.String("bus", b.Name())),
		bitrateKb:   bitrateKb,
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "spindeck "+h.broadcaster.Name())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// FFmpeg: PCM stdin -> MP3 stdout
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", fmt.Sprint(audio.SampleRate),
		"-ac", fmt.Sprint(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", h.bitrateKb),
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.Warn("stdin pipe", zap.Error(err))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.Warn("stdout pipe", zap.Error(err))
		return
	}

	if err := cmd.Start(); err != nil {
		h.log.Warn("ffmpeg start", zap.Error(err))
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	h.log.Info("listener connected", zap.Int("total", h.broadcaster.ListenerCount()))
	defer h.log.Info("listener disconnected")

	// Feed PCM frames to FFmpeg.
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.done:
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	// Read MP3 from FFmpeg and write to the response.
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.log.Warn("ffmpeg read", zap.Error(err))
			}
			break
		}
	}

	cancel()
	cmd.Wait()
}
