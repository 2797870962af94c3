// Package track holds the immutable description of a playable local file.
package track

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2"
	"github.com/google/uuid"
)

// LearnTolerance is the largest difference between a known and an observed
// duration that is still treated as the same length. Fades truncate playback
// slightly, so small gaps are noise.
const LearnTolerance = 2 * time.Second

// Format is the container/codec family guessed from the file extension.
type Format string

const (
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatMP4     Format = "mp4"
	FormatUnknown Format = "unknown"
)

// FormatFromPath maps a file extension to a Format.
func FormatFromPath(path string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "mp3":
		return FormatMP3
	case "wav", "wave":
		return FormatWAV
	case "flac":
		return FormatFLAC
	case "ogg", "oga":
		return FormatOGG
	case "mp4", "m4a", "aac":
		return FormatMP4
	default:
		return FormatUnknown
	}
}

// Track is a local audio file. A zero Duration means the length is unknown.
type Track struct {
	ID       uuid.UUID     `json:"id"`
	Path     string        `json:"path"`
	Title    string        `json:"title,omitempty"`
	Artist   string        `json:"artist,omitempty"`
	Album    string        `json:"album,omitempty"`
	Format   Format        `json:"format"`
	Size     int64         `json:"size,omitempty"`
	Duration time.Duration `json:"duration"`
}

// IDForPath derives a stable id from an absolute file path so behavior
// recorded for a file survives restarts.
func IDForPath(path string) uuid.UUID {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path))
}

// New builds a Track for path with no metadata.
func New(path string) Track {
	return Track{
		ID:     IDForPath(path),
		Path:   path,
		Format: FormatFromPath(path),
	}
}

// FromFile stats path and reads ID3 tags when the file has them. Tag errors
// are not fatal: the track is returned with whatever was found.
func FromFile(path string) (Track, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Track{}, err
	}
	if info.IsDir() {
		return Track{}, fmt.Errorf("%s is a directory", path)
	}

	t := New(path)
	t.Size = info.Size()

	if t.Format == FormatMP3 {
		if err := t.readID3(); err != nil && !errors.Is(err, id3v2.ErrUnsupportedVersion) {
			return t, fmt.Errorf("read tags: %w", err)
		}
	}
	return t, nil
}

func (t *Track) readID3() error {
	tag, err := id3v2.Open(t.Path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	t.Title = tag.Title()
	t.Artist = tag.Artist()
	t.Album = tag.Album()

	// TLEN carries the length in milliseconds.
	if ms, err := strconv.ParseInt(strings.TrimSpace(tag.GetTextFrame("TLEN").Text), 10, 64); err == nil && ms > 0 {
		t.Duration = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// HasDuration reports whether the length is known.
func (t Track) HasDuration() bool {
	return t.Duration > 0
}

// LearnDuration adopts an observed length. A track without a duration takes it
// outright; a known duration is only replaced when the two differ by more than
// LearnTolerance. Returns true when the duration changed.
func (t *Track) LearnDuration(actual time.Duration) bool {
	if actual <= 0 {
		return false
	}
	if !t.HasDuration() {
		t.Duration = actual
		return true
	}

	diff := actual - t.Duration
	if diff < 0 {
		diff = -diff
	}
	if diff > LearnTolerance {
		t.Duration = actual
		return true
	}
	return false
}

// DisplayTitle falls back to the file name when there is no title tag.
func (t Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DisplayArtist falls back to a placeholder when there is no artist tag.
func (t Track) DisplayArtist() string {
	if t.Artist != "" {
		return t.Artist
	}
	return "Unknown Artist"
}

// Seconds returns the duration in whole seconds and whether it is known.
func (t Track) Seconds() (uint64, bool) {
	if !t.HasDuration() {
		return 0, false
	}
	return uint64(t.Duration / time.Second), true
}
