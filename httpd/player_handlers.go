package httpd

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cryogon/panpipe/jukebox"
	"cryogon/panpipe/track"

	log "github.com/sirupsen/logrus"
)

func (s *Server) getPlayer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, s.Jukebox.Status())
	}
}

func (s *Server) getQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queue := s.Jukebox.Queue()
		if queue == nil {
			queue = []track.Track{}
		}
		respondWithJSON(w, http.StatusOK, queue)
	}
}

func (s *Server) getTracks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracks := s.Jukebox.Library().Tracks()
		if tracks == nil {
			tracks = []track.Track{}
		}
		respondWithJSON(w, http.StatusOK, tracks)
	}
}

// handleCommand forwards a POST to the jukebox. The body is optional and
// carries the command arguments (track_id, reason, volume, size).
func (s *Server) handleCommand(cmdType jukebox.CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd jukebox.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil && !errors.Is(err, io.EOF) {
			log.Debugf("[HTTP] Bad %s body: %v", cmdType, err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		cmd.Type = cmdType

		if err := s.Jukebox.Do(r.Context(), cmd); err != nil {
			respondWithError(w, statusFor(err), err)
			return
		}
		respondWithJSON(w, http.StatusOK, s.Jukebox.Status())
	}
}

func (s *Server) setAutoplay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.Jukebox.SetAutoplay(req.Enabled)
		respondWithJSON(w, http.StatusOK, s.Jukebox.Status())
	}
}
