package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cryogon/panpipe/track"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SaveTrackMetadata records what is known about a file. A track without a
// duration does not erase one learned earlier.
func (s *Store) SaveTrackMetadata(ctx context.Context, t track.Track) error {
	query := `
	INSERT INTO track_metadata (track_id, file_path, title, artist, album, duration, file_size, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(track_id) DO UPDATE SET
		file_path = excluded.file_path,
		title = excluded.title,
		artist = excluded.artist,
		album = excluded.album,
		duration = COALESCE(excluded.duration, track_metadata.duration),
		file_size = excluded.file_size,
		updated_at = CURRENT_TIMESTAMP;
	`
	var duration sql.NullInt64
	if secs, ok := t.Seconds(); ok {
		duration = sql.NullInt64{Int64: int64(secs), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		t.ID.String(), t.Path, t.Title, t.Artist, t.Album, duration, t.Size,
	)
	return err
}

// UpdateTrackDuration stores a learned length. Tracks with no metadata row are
// created with just an id and the duration.
func (s *Store) UpdateTrackDuration(ctx context.Context, trackID uuid.UUID, seconds uint64) error {
	query := `
	INSERT INTO track_metadata (track_id, file_path, duration, updated_at)
	VALUES (?, '', ?, CURRENT_TIMESTAMP)
	ON CONFLICT(track_id) DO UPDATE SET
		duration = excluded.duration,
		updated_at = CURRENT_TIMESTAMP;
	`
	_, err := s.db.ExecContext(ctx, query, trackID.String(), int64(seconds))
	return err
}

// GetTrackDuration returns ok=false when there is no row or no duration.
func (s *Store) GetTrackDuration(ctx context.Context, trackID uuid.UUID) (uint64, bool, error) {
	var duration sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT duration FROM track_metadata WHERE track_id = ?", trackID.String()).Scan(&duration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !duration.Valid || duration.Int64 <= 0 {
		return 0, false, nil
	}
	return uint64(duration.Int64), true, nil
}

// GetTracks lists every stored track, ordered by path.
func (s *Store) GetTracks(ctx context.Context) ([]track.Track, error) {
	query := `SELECT track_id, file_path, title, artist, album, duration, file_size FROM track_metadata ORDER BY file_path`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []track.Track
	for rows.Next() {
		var (
			id                   string
			title, artist, album sql.NullString
			duration             sql.NullInt64
			size                 sql.NullInt64
			t                    track.Track
		)
		if err := rows.Scan(&id, &t.Path, &title, &artist, &album, &duration, &size); err != nil {
			return nil, err
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			log.Warnf("[Store] Skipping track row with id %q: %v", id, err)
			continue
		}

		t.ID = parsed
		t.Title = title.String
		t.Artist = artist.String
		t.Album = album.String
		t.Size = size.Int64
		t.Format = track.FormatFromPath(t.Path)
		if duration.Valid && duration.Int64 > 0 {
			t.Duration = time.Duration(duration.Int64) * time.Second
		}
		tracks = append(tracks, t)
	}

	return tracks, rows.Err()
}
