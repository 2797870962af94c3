package httpd

import (
	"errors"
	"net/http"
	"strconv"

	"cryogon/panpipe/behavior"

	log "github.com/sirupsen/logrus"
)

const defaultSessionLimit = 50

func (s *Server) getBehaviors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		behaviors, err := s.Store.GetAllTrackBehaviors(r.Context())
		if err != nil {
			log.Errorf("[HTTP] Failed to fetch behaviors: %v", err)
			respondWithError(w, http.StatusInternalServerError, err)
			return
		}
		if behaviors == nil {
			behaviors = []*behavior.TrackBehavior{}
		}
		respondWithJSON(w, http.StatusOK, behaviors)
	}
}

func (s *Server) getBehavior() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackID, ok := trackIDParam(w, r)
		if !ok {
			return
		}

		b, err := s.Store.GetTrackBehavior(r.Context(), trackID)
		if err != nil {
			log.Errorf("[HTTP] Failed to fetch behavior for %s: %v", trackID, err)
			respondWithError(w, http.StatusInternalServerError, err)
			return
		}
		if b == nil {
			respondWithError(w, http.StatusNotFound, behavior.ErrTrackNotFound)
			return
		}
		respondWithJSON(w, http.StatusOK, b)
	}
}

func (s *Server) getSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackID, ok := trackIDParam(w, r)
		if !ok {
			return
		}

		limit := defaultSessionLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		sessions, err := s.Store.GetSessions(r.Context(), trackID, limit)
		if err != nil {
			log.Errorf("[HTTP] Failed to fetch sessions for %s: %v", trackID, err)
			respondWithError(w, http.StatusInternalServerError, err)
			return
		}
		if sessions == nil {
			sessions = []*behavior.PlaySession{}
		}
		respondWithJSON(w, http.StatusOK, sessions)
	}
}

func (s *Server) deleteBehavior() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackID, ok := trackIDParam(w, r)
		if !ok {
			return
		}

		if err := s.Store.DeleteTrackBehavior(r.Context(), trackID); err != nil {
			if !errors.Is(err, behavior.ErrTrackNotFound) {
				log.Errorf("[HTTP] Failed to delete behavior for %s: %v", trackID, err)
			}
			respondWithError(w, statusFor(err), err)
			return
		}
		log.Infof("[HTTP] Forgot listening history of %s", trackID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) getWeights() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, s.Jukebox.Weights(r.Context()))
	}
}

func (s *Server) getShuffle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		size := s.Jukebox.Library().Len()
		if raw := r.URL.Query().Get("size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				http.Error(w, "Invalid size", http.StatusBadRequest)
				return
			}
			size = n
		}
		respondWithJSON(w, http.StatusOK, s.Jukebox.Preview(r.Context(), size))
	}
}
