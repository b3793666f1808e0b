package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/japaniel/rtkstories/pkg/db"
	"github.com/japaniel/rtkstories/pkg/stories"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the kanji in the story cache (sqlite backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store stories.Store) error {
				bundles, ok := store.(*db.BundleStore)
				if !ok {
					return errors.New(`list needs cache.backend = "sqlite"`)
				}
				entries, err := bundles.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list story cache: %w", err)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Story cache is empty.")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{e.Kanji, strconv.Itoa(e.KoohiiCount), e.FetchedAt.Local().Format(time.DateTime)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Kanji", "Koohii", "Fetched"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}
