package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cryogon/panpipe/behavior"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var _ behavior.Store = (*Store)(nil)

const behaviorColumns = `track_id, total_plays, total_skips, total_play_time, last_played,
	skip_positions, completion_rate, weight, tags`

// SaveTrackBehavior upserts the aggregate for b.TrackID.
func (s *Store) SaveTrackBehavior(ctx context.Context, b *behavior.TrackBehavior) error {
	positions, err := json.Marshal(nonNil(b.SkipPositions))
	if err != nil {
		return fmt.Errorf("encode skip positions: %w", err)
	}
	tags, err := json.Marshal(nonNil(b.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	query := `
	INSERT INTO track_behaviors (` + behaviorColumns + `, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(track_id) DO UPDATE SET
		total_plays = excluded.total_plays,
		total_skips = excluded.total_skips,
		total_play_time = excluded.total_play_time,
		last_played = excluded.last_played,
		skip_positions = excluded.skip_positions,
		completion_rate = excluded.completion_rate,
		weight = excluded.weight,
		tags = excluded.tags,
		updated_at = CURRENT_TIMESTAMP;
	`
	_, err = s.db.ExecContext(ctx, query,
		b.TrackID.String(), b.TotalPlays, b.TotalSkips, b.TotalPlayTime, formatTime(b.LastPlayed),
		string(positions), b.CompletionRate, b.Weight, string(tags),
	)
	return err
}

// GetTrackBehavior returns nil, nil when the track has never been recorded.
func (s *Store) GetTrackBehavior(ctx context.Context, trackID uuid.UUID) (*behavior.TrackBehavior, error) {
	query := `SELECT ` + behaviorColumns + ` FROM track_behaviors WHERE track_id = ?`
	row := s.db.QueryRowContext(ctx, query, trackID.String())

	b, err := scanBehavior(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// GetAllTrackBehaviors lists every aggregate, highest weight first. Rows whose
// track id cannot be parsed are skipped.
func (s *Store) GetAllTrackBehaviors(ctx context.Context) ([]*behavior.TrackBehavior, error) {
	query := `SELECT ` + behaviorColumns + ` FROM track_behaviors ORDER BY weight DESC, track_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	behaviors := []*behavior.TrackBehavior{}
	for rows.Next() {
		b, err := scanBehavior(rows)
		if err != nil {
			if errors.Is(err, errBadTrackID) {
				log.Warnf("[Store] Skipping behavior row: %v", err)
				continue
			}
			return nil, err
		}
		behaviors = append(behaviors, b)
	}

	return behaviors, rows.Err()
}

// DeleteTrackBehavior forgets everything recorded for a track. It returns
// behavior.ErrTrackNotFound when there was no behavior record.
func (s *Store) DeleteTrackBehavior(ctx context.Context, trackID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM play_sessions WHERE track_id = ?", trackID.String()); err != nil {
		tx.Rollback()
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM track_behaviors WHERE track_id = ?", trackID.String())
	if err != nil {
		tx.Rollback()
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		tx.Rollback()
		return behavior.ErrTrackNotFound
	}

	return tx.Commit()
}

var errBadTrackID = errors.New("unparseable track id")

type scanner interface {
	Scan(dest ...any) error
}

func scanBehavior(row scanner) (*behavior.TrackBehavior, error) {
	var (
		id         string
		lastPlayed sql.NullString
		positions  sql.NullString
		tags       sql.NullString
		b          behavior.TrackBehavior
	)

	err := row.Scan(&id, &b.TotalPlays, &b.TotalSkips, &b.TotalPlayTime, &lastPlayed,
		&positions, &b.CompletionRate, &b.Weight, &tags)
	if err != nil {
		return nil, err
	}

	b.TrackID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", errBadTrackID, id, err)
	}

	b.LastPlayed = parseTime(lastPlayed)
	b.SkipPositions = decodeList[int](positions)
	b.Tags = decodeList[string](tags)

	return &b, nil
}

// decodeList treats NULL and malformed JSON as an empty list.
func decodeList[T any](raw sql.NullString) []T {
	out := []T{}
	if !raw.Valid || raw.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil || out == nil {
		log.Debugf("[Store] Ignoring malformed list %q", raw.String)
		return []T{}
	}
	return out
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// parseTime treats NULL and unparseable timestamps as absent.
func parseTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		log.Debugf("[Store] Ignoring malformed timestamp %q", raw.String)
		return nil
	}
	t = t.UTC()
	return &t
}
