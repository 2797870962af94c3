// Package library keeps the in-memory set of playable tracks.
package library

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"cryogon/panpipe/track"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Playable lists the formats the player can decode.
var Playable = []track.Format{track.FormatMP3, track.FormatWAV, track.FormatFLAC, track.FormatOGG}

type Library struct {
	mu     sync.RWMutex
	tracks map[uuid.UUID]*track.Track
	order  []uuid.UUID
}

func New() *Library {
	return &Library{tracks: make(map[uuid.UUID]*track.Track)}
}

// Add inserts or replaces tracks, keeping first-seen order.
func (l *Library) Add(tracks ...track.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range tracks {
		if _, ok := l.tracks[t.ID]; !ok {
			l.order = append(l.order, t.ID)
		}
		l.tracks[t.ID] = &t
	}
}

// Scan walks dirs and adds every playable file. Unreadable entries and tag
// errors are logged and skipped; only a missing root is returned.
func (l *Library) Scan(dirs ...string) (int, error) {
	var (
		found []track.Track
		errs  []error
	)

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir {
					return err
				}
				log.Warnf("[Library] Skipping %s: %v", path, err)
				return nil
			}
			if d.IsDir() || !slices.Contains(Playable, track.FormatFromPath(path)) {
				return nil
			}

			t, err := track.FromFile(path)
			if err != nil {
				log.Warnf("[Library] Reading %s: %v", path, err)
				if t.Path == "" {
					return nil
				}
			}
			found = append(found, t)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	l.Add(found...)
	log.Infof("[Library] Scanned %d tracks from %d directories", len(found), len(dirs))
	return len(found), errors.Join(errs...)
}

func (l *Library) Get(id uuid.UUID) (track.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tracks[id]
	if !ok {
		return track.Track{}, false
	}
	return *t, true
}

// IDs returns track ids in insertion order.
func (l *Library) IDs() []uuid.UUID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.order)
}

// Tracks returns copies of all tracks in insertion order.
func (l *Library) Tracks() []track.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return lo.Map(l.order, func(id uuid.UUID, _ int) track.Track {
		return *l.tracks[id]
	})
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Neighbor returns the track offset positions away from id, wrapping around
// the ends.
func (l *Library) Neighbor(id uuid.UUID, offset int) (track.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.order)
	if n == 0 {
		return track.Track{}, false
	}

	i := slices.Index(l.order, id)
	if i < 0 {
		return *l.tracks[l.order[0]], true
	}
	j := ((i+offset)%n + n) % n
	return *l.tracks[l.order[j]], true
}

// SetDuration records a learned length. It returns false for an unknown id.
func (l *Library) SetDuration(id uuid.UUID, d time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tracks[id]
	if !ok {
		return false
	}
	t.Duration = d
	return true
}

// Missing returns the tracks whose length is still unknown.
func (l *Library) Missing() []track.Track {
	return lo.Filter(l.Tracks(), func(t track.Track, _ int) bool {
		return !t.HasDuration()
	})
}
