package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/rtkstories/pkg/stories"
)

func newEvictCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <kanji>...",
		Short: "Drop cached stories so they are scraped again on next use",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(func(cache *stories.Cache) error {
				for _, kanji := range args {
					if err := cache.Invalidate(cmd.Context(), kanji); err != nil {
						return fmt.Errorf("evict %s: %w", kanji, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Evicted %s\n", kanji)
				}
				return nil
			})
		},
	}
}
