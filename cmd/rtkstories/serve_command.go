package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/japaniel/rtkstories/pkg/deck"
	"github.com/japaniel/rtkstories/pkg/legacy"
	"github.com/japaniel/rtkstories/pkg/logging"
	"github.com/japaniel/rtkstories/pkg/reading"
	"github.com/japaniel/rtkstories/pkg/review"
	"github.com/japaniel/rtkstories/pkg/stories"
	"github.com/japaniel/rtkstories/pkg/web"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	var noReadings bool

	cmd := &cobra.Command{
		Use:   "serve [deck]",
		Short: "Serve the card review UI for a deck",
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
			addr := cfg.Server.Listen
			if strings.TrimSpace(listen) != "" {
				addr = strings.TrimSpace(listen)
			}
			logger := ctx.log()

			client, err := ctx.ankiClient()
			if err != nil {
				return err
			}
			fetcher, err := ctx.fetcher()
			if err != nil {
				return err
			}

			opts := []review.Option{review.WithLogger(logger)}
			if !noReadings {
				hinter, err := reading.NewHinter()
				if err != nil {
					logger.Warn("reading hints disabled", logging.Error(err))
				} else {
					opts = append(opts, review.WithReadings(hinter))
				}
			}

			return ctx.withCache(func(cache *stories.Cache) error {
				engine := review.NewEngine(client, cache, opts...)
				srv, err := web.New(web.Options{
					Deck:         deckName,
					StaticDir:    cfg.Server.StaticDir,
					ReferenceURL: fetcher.PageURL,
					Logger:       logger,
				}, deck.NewIndex(client), engine, legacy.NewResolver(fetcher, client))
				if err != nil {
					return err
				}
				logger.Info("serving deck", slog.String("deck", deckName), slog.String("anki", cfg.Anki.URL))
				return srv.ListenAndServe(cmd.Context(), addr)
			})
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on (overrides server.listen)")
	cmd.Flags().BoolVar(&noReadings, "no-readings", false, "Skip loading the morphological dictionary for reading hints")
	return cmd
}
