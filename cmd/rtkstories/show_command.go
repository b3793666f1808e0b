package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/japaniel/rtkstories/pkg/stories"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <kanji>",
		Short: "Print the stories cached for a kanji, scraping them if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(func(cache *stories.Cache) error {
				b, err := cache.Fetch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderBundle(b))
				return nil
			})
		},
	}
}

func renderBundle(b *stories.Bundle) string {
	var notes [][]string
	for _, n := range []struct {
		label string
		value *string
	}{
		{"Heisig", b.Heisig},
		{"Comment", b.Comment},
		{"Primitive", b.Primitive},
	} {
		if n.value != nil {
			notes = append(notes, []string{n.label, *n.value})
		}
	}

	rows := make([][]string, 0, len(b.Koohii))
	for i, k := range b.Koohii {
		rows = append(rows, []string{strconv.Itoa(i), k.Author, strconv.Itoa(k.Score), k.Story})
	}

	out := ""
	if len(notes) > 0 {
		out += renderTable([]string{"Field", "Text"}, notes, nil) + "\n"
	}
	if len(rows) == 0 {
		return out + "No Koohii stories.\n"
	}
	return out + renderTable([]string{"#", "Author", "Score", "Story"}, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignLeft}) + "\n"
}
