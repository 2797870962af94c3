package cli

import (
	"context"
	"fmt"
	"io"

	"cryogon/panpipe/behavior"
	"cryogon/panpipe/shuffle"
	"cryogon/panpipe/store"
	"cryogon/panpipe/track"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newShuffleCmd(opts *rootOptions) *cobra.Command {
	var (
		size int
		seed uint64
	)

	cmd := &cobra.Command{
		Use:   "shuffle",
		Short: "Preview a weighted shuffle of the known tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLiteStore(opts.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			calc := behavior.NewWeightCalculator(opts.cfg.WeightDecayDays)
			selector := shuffle.NewSelector(calc)
			if cmd.Flags().Changed("seed") {
				selector = shuffle.NewSeededSelector(calc, seed)
			}
			return printShuffle(cmd.Context(), cmd.OutOrStdout(), db, selector, size)
		},
	}

	cmd.Flags().IntVarP(&size, "size", "n", 20, "Number of tracks to draw")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed the shuffle for a repeatable preview")
	return cmd
}

func printShuffle(ctx context.Context, w io.Writer, db *store.Store, selector *shuffle.Selector, size int) error {
	tracks, err := db.GetTracks(ctx)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("no tracks known yet, run `panpipe serve` with a music directory first")
	}
	behaviors, err := db.GetAllTrackBehaviors(ctx)
	if err != nil {
		return err
	}

	byID := lo.KeyBy(tracks, func(t track.Track) uuid.UUID { return t.ID })
	index := shuffle.Index(behaviors)
	ids := lo.Map(tracks, func(t track.Track, _ int) uuid.UUID { return t.ID })
	weights := lo.SliceToMap(selector.RankByWeight(ids, index), func(r shuffle.Ranked) (uuid.UUID, float64) {
		return r.TrackID, r.Weight
	})

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Track", "Weight"})
	for i, id := range selector.GeneratePlaylist(ids, index, size) {
		t.AppendRow(table.Row{i + 1, trackName(byID, id), fmt.Sprintf("%.2f", weights[id])})
	}
	t.Render()
	return nil
}
