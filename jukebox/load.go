package jukebox

import (
	"context"
	"time"

	"cryogon/panpipe/library"

	log "github.com/sirupsen/logrus"
)

// LoadLibrary scans dirs into lib, fills in lengths learned in earlier runs
// and records every track's metadata in the store.
func LoadLibrary(ctx context.Context, lib *library.Library, store Store, dirs []string) error {
	if len(dirs) == 0 {
		log.Warn("[Jukebox] No music directories configured")
		return nil
	}

	_, scanErr := lib.Scan(dirs...)

	var restored int
	for _, t := range lib.Tracks() {
		if !t.HasDuration() {
			secs, ok, err := store.GetTrackDuration(ctx, t.ID)
			if err != nil {
				return err
			}
			if ok {
				t.Duration = time.Duration(secs) * time.Second
				lib.SetDuration(t.ID, t.Duration)
				restored++
			}
		}

		if err := store.SaveTrackMetadata(ctx, t); err != nil {
			return err
		}
	}

	missing := lib.Missing()
	for _, t := range missing {
		log.Debugf("[Jukebox] Length of %s will be learned on first play", t.DisplayTitle())
	}

	log.Infof("[Jukebox] Library ready: %d tracks, %d learned durations restored, %d unknown", lib.Len(), restored, len(missing))
	return scanErr
}
