package store

import (
	"context"
	"database/sql"
	"fmt"

	"cryogon/panpipe/behavior"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SaveSession appends a finalized session to the log.
func (s *Store) SaveSession(ctx context.Context, session *behavior.PlaySession) error {
	query := `
	INSERT INTO play_sessions (session_id, track_id, started_at, ended_at, play_duration,
		track_duration, skip_reason, completion_percentage)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	var reason sql.NullString
	if session.SkipReason != nil {
		reason = sql.NullString{String: string(*session.SkipReason), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		session.ID.String(), session.TrackID.String(), formatTime(&session.StartedAt), formatTime(session.EndedAt),
		session.PlayDuration, session.TrackDuration, reason, session.CompletionPercentage,
	)
	return err
}

// GetSessions returns the most recent sessions of a track, newest first.
// A non-positive limit returns all of them.
func (s *Store) GetSessions(ctx context.Context, trackID uuid.UUID, limit int) ([]*behavior.PlaySession, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
	SELECT session_id, track_id, started_at, ended_at, play_duration, track_duration, skip_reason, completion_percentage
	FROM play_sessions
	WHERE track_id = ?
	ORDER BY started_at DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, trackID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*behavior.PlaySession{}
	for rows.Next() {
		var (
			session        behavior.PlaySession
			id, track      string
			started, ended sql.NullString
			reason         sql.NullString
		)
		err := rows.Scan(&id, &track, &started, &ended, &session.PlayDuration, &session.TrackDuration,
			&reason, &session.CompletionPercentage)
		if err != nil {
			return nil, err
		}

		if session.ID, err = uuid.Parse(id); err != nil {
			log.Warnf("[Store] Skipping session row with id %q: %v", id, err)
			continue
		}
		if session.TrackID, err = uuid.Parse(track); err != nil {
			return nil, fmt.Errorf("session %s: bad track id %q: %w", id, track, err)
		}
		if t := parseTime(started); t != nil {
			session.StartedAt = *t
		}
		session.EndedAt = parseTime(ended)
		if reason.Valid {
			if r, ok := behavior.ParseSkipReason(reason.String); ok {
				session.SkipReason = &r
			}
		}

		sessions = append(sessions, &session)
	}

	return sessions, rows.Err()
}

// CountSessions returns how many sessions were committed overall.
func (s *Store) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM play_sessions").Scan(&n)
	return n, err
}
