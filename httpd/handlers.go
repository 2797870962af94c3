package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"cryogon/panpipe/behavior"
	"cryogon/panpipe/jukebox"
	"cryogon/panpipe/player"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// BehaviorStore is the read side of the behavior store plus deletion.
type BehaviorStore interface {
	GetTrackBehavior(ctx context.Context, trackID uuid.UUID) (*behavior.TrackBehavior, error)
	GetAllTrackBehaviors(ctx context.Context) ([]*behavior.TrackBehavior, error)
	GetSessions(ctx context.Context, trackID uuid.UUID, limit int) ([]*behavior.PlaySession, error)
	DeleteTrackBehavior(ctx context.Context, trackID uuid.UUID) error
}

type Server struct {
	Jukebox *jukebox.Service
	Store   BehaviorStore
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Warnf("[HTTP] Failed to encode response: %v", err)
		}
	}
}

func respondWithError(w http.ResponseWriter, code int, err error) {
	respondWithJSON(w, code, errorResponse{Error: err.Error()})
}

func trackIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "trackID"))
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// statusFor maps jukebox and player errors to HTTP status codes.
func statusFor(err error) int {
	var perr *player.PlaybackError
	switch {
	case errors.Is(err, jukebox.ErrUnknownTrack), errors.Is(err, behavior.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, jukebox.ErrInvalidVolume):
		return http.StatusBadRequest
	case errors.Is(err, jukebox.ErrEmptyLibrary):
		return http.StatusConflict
	case errors.Is(err, jukebox.ErrNotRunning), errors.Is(err, player.ErrNoOutput):
		return http.StatusServiceUnavailable
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
