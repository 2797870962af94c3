package httpd

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cryogon/panpipe/jukebox"
)

func NewRouter(svc *jukebox.Service, store BehaviorStore) http.Handler {
	srv := &Server{
		Jukebox: svc,
		Store:   store,
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/tracks", srv.getTracks())
	r.Get("/weights", srv.getWeights())
	r.Get("/shuffle", srv.getShuffle())

	r.Route("/behaviors", func(r chi.Router) {
		r.Get("/", srv.getBehaviors())
		r.Get("/{trackID}", srv.getBehavior())
		r.Get("/{trackID}/sessions", srv.getSessions())
		r.Delete("/{trackID}", srv.deleteBehavior())
	})

	r.Route("/player", func(r chi.Router) {
		r.Get("/", srv.getPlayer())
		r.Get("/queue", srv.getQueue())
		r.Post("/volume", srv.handleCommand(jukebox.CmdVolume))
		r.Post("/autoplay", srv.setAutoplay())
		for _, cmd := range []jukebox.CommandType{
			jukebox.CmdPlay, jukebox.CmdPause, jukebox.CmdResume, jukebox.CmdToggle,
			jukebox.CmdStop, jukebox.CmdNext, jukebox.CmdPrev, jukebox.CmdSkip, jukebox.CmdShuffle,
		} {
			r.Post("/"+string(cmd), srv.handleCommand(cmd))
		}
	})

	return r
}
