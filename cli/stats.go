package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cryogon/panpipe/behavior"
	"cryogon/panpipe/config"
	"cryogon/panpipe/shuffle"
	"cryogon/panpipe/store"
	"cryogon/panpipe/track"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what has been learned about each track",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLiteStore(opts.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			return printStats(cmd.Context(), cmd.OutOrStdout(), db, opts.cfg, limit, time.Now())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many tracks (0 for all)")
	return cmd
}

func printStats(ctx context.Context, w io.Writer, db *store.Store, cfg config.Config, limit int, now time.Time) error {
	behaviors, err := db.GetAllTrackBehaviors(ctx)
	if err != nil {
		return err
	}
	tracks, err := db.GetTracks(ctx)
	if err != nil {
		return err
	}
	sessions, err := db.CountSessions(ctx)
	if err != nil {
		return err
	}

	byID := lo.KeyBy(tracks, func(t track.Track) uuid.UUID { return t.ID })
	selector := shuffle.NewSelector(behavior.NewWeightCalculator(cfg.WeightDecayDays))
	index := shuffle.Index(behaviors)
	selector.RecalculateAll(index)

	ids := lo.Map(behaviors, func(b *behavior.TrackBehavior, _ int) uuid.UUID { return b.TrackID })
	ranked := selector.RankByWeight(ids, index)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Track", "Weight", "Plays", "Skips", "Early skips", "Completion", "Listened", "Last played", "Tags"})

	for _, r := range ranked {
		b := r.Behavior
		t.AppendRow(table.Row{
			trackName(byID, r.TrackID),
			weightColor(r.Weight)(fmt.Sprintf("%.2f", r.Weight)),
			b.TotalPlays,
			b.TotalSkips,
			earlySkips(b, cfg.SkipThreshold),
			fmt.Sprintf("%.0f%%", b.CompletionRate),
			(time.Duration(b.TotalPlayTime) * time.Second).String(),
			lastPlayed(b, now),
			strings.Join(b.Tags, ", "),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d tracks", len(behaviors)), "", "", "", "", "", "", fmt.Sprintf("%d sessions", sessions), ""})
	t.Render()
	return nil
}

func trackName(tracks map[uuid.UUID]track.Track, id uuid.UUID) string {
	t, ok := tracks[id]
	if !ok || t.Path == "" {
		return id.String()
	}
	if t.Title != "" {
		return t.DisplayArtist() + " - " + t.Title
	}
	return filepath.Base(t.Path)
}

// earlySkips counts skips that happened before threshold seconds.
func earlySkips(b *behavior.TrackBehavior, threshold uint64) int {
	return lo.CountBy(b.SkipPositions, func(pos int) bool {
		return pos >= 0 && uint64(pos) < threshold
	})
}

func lastPlayed(b *behavior.TrackBehavior, now time.Time) string {
	if b.LastPlayed == nil {
		return "never"
	}
	return humanize.RelTime(*b.LastPlayed, now, "ago", "from now")
}

func weightColor(w float64) func(a ...interface{}) string {
	switch {
	case w >= 1.5:
		return text.FgGreen.Sprint
	case w < 0.5:
		return text.FgHiRed.Sprint
	default:
		return fmt.Sprint
	}
}
