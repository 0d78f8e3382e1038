package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fmueller/dictado/internal/history"
	"github.com/spf13/cobra"
)

const historyPreviewRunes = 72

func newHistoryCmd(app *appState) *cobra.Command {
	var (
		limit    int
		clearAll bool
		full     bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or clear recent transcriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must not be negative, got %d", limit)
			}

			core, err := app.openCore()
			if err != nil {
				return err
			}

			if clearAll {
				if err := core.history.Clear(cmd.Context(), core.settings.Identity); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
				return nil
			}

			entries, err := core.history.List(cmd.Context(), core.settings.Identity, limit)
			if err != nil {
				return err
			}
			writeHistory(cmd.OutOrStdout(), entries, full)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindDataDirFlag(cmd, app)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show; 0 shows all")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all saved transcriptions")
	cmd.Flags().BoolVar(&full, "full", false, "Print whole transcripts instead of a preview")
	return cmd
}

func writeHistory(w io.Writer, entries []history.Entry, full bool) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No transcriptions yet.")
		return
	}

	for _, entry := range entries {
		text := entry.Text
		if !full {
			text = preview(text)
		}
		source := entry.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(w, "%s  %4.1f min  %-7s  %s\n", entry.Timestamp.Local().Format("2006-01-02 15:04"), entry.DurationMinutes, source, text)
	}
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= historyPreviewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:historyPreviewRunes-1]) + "…"
}
