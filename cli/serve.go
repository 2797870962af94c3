package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryogon/panpipe/config"
	"cryogon/panpipe/httpd"
	"cryogon/panpipe/ipc"
	"cryogon/panpipe/jukebox"
	"cryogon/panpipe/library"
	"cryogon/panpipe/logger"
	"cryogon/panpipe/player"
	"cryogon/panpipe/store"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noAudio bool

	cmd := &cobra.Command{
		Use:   "serve [music dir...]",
		Short: "Run the player with its IPC socket and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			closer, err := logger.Setup(opts.cfg.LogLevel, opts.cfg.LogJSON, opts.cfg.LogFile)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.cfg, append(opts.cfg.MusicDirs, args...), noAudio)
		},
	}

	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "Play silently without opening an audio device")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, dirs []string, noAudio bool) error {
	log.Println("Starting panpipe...")

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	lib := library.New()
	if err := jukebox.LoadLibrary(ctx, lib, db, dirs); err != nil {
		log.Warnf("Some music directories could not be read: %v", err)
	}
	if lib.Len() == 0 {
		log.Warn("The library is empty, pass music directories or set PANPIPE_MUSIC_DIRS")
	}

	var out player.Output = player.NewSpeakerOutput(cfg.SampleRate)
	if noAudio {
		out = player.NewNullOutput()
	}
	engine := player.New(out, player.Options{
		Volume:  cfg.Volume,
		FadeIn:  cfg.FadeIn,
		FadeOut: cfg.FadeOut,
	})

	svc := jukebox.New(engine, db, lib, jukebox.Options{
		MinPlayTime: cfg.MinPlayTime,
		DecayDays:   cfg.WeightDecayDays,
		Autoplay:    true,
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpd.NewRouter(svc, db),
	}

	errs := make(chan error, 2)
	go func() {
		log.Printf("Server listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	go func() {
		if err := ipc.NewIPCHandler(cfg.SocketPath, svc).Serve(ctx); err != nil {
			errs <- err
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	var runErr error
	select {
	case runErr = <-done:
	case runErr = <-errs:
		cancel()
		<-done
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}

	log.Println("panpipe stopped")
	return runErr
}
