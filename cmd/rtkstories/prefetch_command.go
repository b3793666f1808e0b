package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/rtkstories/pkg/deck"
	"github.com/japaniel/rtkstories/pkg/prefetch"
	"github.com/japaniel/rtkstories/pkg/stories"
)

func newPrefetchCommand(ctx *commandContext) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "prefetch [deck]",
		Short: "Download and cache the stories of every card in a deck",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			deckName, err := ctx.deckName(args)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Prefetch.Workers
			}
			client, err := ctx.ankiClient()
			if err != nil {
				return err
			}
			snap, err := deck.NewIndex(client).Snapshot(cmd.Context(), deckName)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return ctx.withCache(func(cache *stories.Cache) error {
				warmer := prefetch.NewWarmer(client, cache,
					prefetch.WithWorkers(workers),
					prefetch.WithLogger(ctx.log()),
					prefetch.WithProgress(func(done, total int, kanji string, err error) {
						status := "ok"
						if err != nil {
							status = "failed"
						}
						fmt.Fprintf(out, "[%d/%d] %s %s\n", done, total, kanji, status)
					}),
				)
				report, err := warmer.Warm(cmd.Context(), snap)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Cached %d of %d kanji.\n", report.Fetched, report.Total)
				if len(report.Failed) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(report.Failed))
				for _, k := range report.FailedKeys() {
					rows = append(rows, []string{k, report.Failed[k].Error()})
				}
				fmt.Fprintln(out, renderTable([]string{"Kanji", "Error"}, rows, nil))
				return fmt.Errorf("%d kanji failed to prefetch", len(report.Failed))
			})
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent downloads (overrides prefetch.workers)")
	return cmd
}
