// Package library maintains the track collection the decks and the Auto-DJ
// draw from.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spindeck/spindeck/internal/audio"
	"go.uber.org/zap"
)

// Track is one playable entry. Identity and the mocked musical metadata are
// fixed at scan time; Key and Energy are re-derived from the decoded signal
// the first time the track is loaded onto a deck.
type Track struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Artist string  `json:"artist"`
	Path   string  `json:"-"`
	Key    string  `json:"key"` // Camelot notation
	BPM    float64 `json:"bpm"`
	Genre  string  `json:"genre"`
	Energy int     `json:"energy"` // 1-10
}

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".m4a": true, ".aac": true,
}

// Library scans a directory into an ordered track list and keeps it fresh
// with a filesystem watcher. The native order (sorted path) is what the
// Auto-DJ walks when shuffle is off.
type Library struct {
	mu     sync.RWMutex
	dir    string
	log    *zap.Logger
	tracks []Track
	byPath map[string]string // path -> stable ID across rescans
}

// Open scans dir. A missing directory is not an error: the library starts
// empty and fills in when the watcher sees files arrive.
func Open(dir string, log *zap.Logger) (*Library, error) {
	l := &Library{dir: dir, log: log, byPath: make(map[string]string)}
	if err := l.rescan(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) rescan() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.log.Warn("library directory missing, starting empty", zap.String("dir", l.dir))
			return nil
		}
		return fmt.Errorf("library scan: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(l.dir, e.Name()))
	}
	sort.Strings(paths)

	tracks := make([]Track, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		id, ok := l.byPath[p]
		if !ok {
			id = uuid.NewString()
		}
		seen[p] = id
		tracks = append(tracks, trackFromPath(id, p))
	}
	l.byPath = seen
	l.tracks = tracks
	l.log.Info("library scanned", zap.Int("tracks", len(tracks)))
	return nil
}

// trackFromPath builds a Track with name-derived mock metadata. A
// "Artist - Title" filename splits into both fields.
func trackFromPath(id, path string) Track {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name, artist := base, ""
	if idx := strings.Index(base, " - "); idx > 0 {
		artist = strings.TrimSpace(base[:idx])
		name = strings.TrimSpace(base[idx+3:])
	}
	return Track{
		ID:     id,
		Name:   name,
		Artist: artist,
		Path:   path,
		Key:    audio.MockKey(nil, base),
		BPM:    audio.MockBPM(nil, base),
		Genre:  audio.MockGenre(base),
		Energy: audio.MockEnergy(nil, base),
	}
}

// Watch rescans on filesystem changes until ctx is cancelled. Events are
// debounced so a large copy triggers one rescan, not hundreds.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("library watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("library watch %s: %w", l.dir, err)
	}

	var timer *time.Timer
	rescan := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(500*time.Millisecond, func() {
				select {
				case rescan <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("library watcher error", zap.Error(err))
		case <-rescan:
			if err := l.rescan(); err != nil {
				l.log.Warn("library rescan failed", zap.Error(err))
			}
		}
	}
}

// Tracks returns a copy of the library in native order.
func (l *Library) Tracks() []Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Track, len(l.tracks))
	copy(out, l.tracks)
	return out
}

// Len returns the track count.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

// Get looks a track up by ID.
func (l *Library) Get(id string) (Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// FindByName matches a display name case-insensitively; this is how
// suggestion responses are resolved back to library entries.
func (l *Library) FindByName(name string) (Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tracks {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Track{}, false
}

// UpdateAnalysis re-derives a track's key and energy once decoded audio is
// available. The richer signal-based derivation replaces the name-only one.
func (l *Library) UpdateAnalysis(id string, a audio.Analysis) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.tracks {
		if l.tracks[i].ID == id {
			l.tracks[i].Key = a.Key
			l.tracks[i].BPM = a.BPM
			l.tracks[i].Energy = a.Energy
			return
		}
	}
}
