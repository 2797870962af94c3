package store

import log "github.com/sirupsen/logrus"

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS track_behaviors (
        track_id TEXT PRIMARY KEY,
        total_plays INTEGER NOT NULL DEFAULT 0,
        total_skips INTEGER NOT NULL DEFAULT 0,
        total_play_time INTEGER NOT NULL DEFAULT 0, -- seconds
        last_played TEXT,                           -- RFC3339
        skip_positions TEXT NOT NULL DEFAULT '[]',  -- JSON array of percentages
        completion_rate REAL NOT NULL DEFAULT 0.0,
        weight REAL NOT NULL DEFAULT 1.0,           -- last computed, display only
        tags TEXT NOT NULL DEFAULT '[]',            -- JSON array
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    -- Append-only log of committed sessions
    CREATE TABLE IF NOT EXISTS play_sessions (
        session_id TEXT PRIMARY KEY,
        track_id TEXT NOT NULL,
        started_at TEXT NOT NULL,
        ended_at TEXT,
        play_duration INTEGER NOT NULL DEFAULT 0,
        track_duration INTEGER NOT NULL DEFAULT 0,
        skip_reason TEXT,                           -- NULL when completed
        completion_percentage REAL NOT NULL DEFAULT 0.0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS track_metadata (
        track_id TEXT PRIMARY KEY,
        file_path TEXT NOT NULL,
        title TEXT,
        artist TEXT,
        album TEXT,
        duration INTEGER,                           -- seconds, NULL when unknown
        file_size INTEGER DEFAULT 0,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_sessions_track_id ON play_sessions(track_id);
    CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON play_sessions(started_at);
    CREATE INDEX IF NOT EXISTS idx_behaviors_weight ON track_behaviors(weight);
    `

	_, err := s.db.Exec(query)
	if err != nil {
		log.Errorf("[Store] Database migration failed: %v", err)
		return err
	}

	return nil
}
