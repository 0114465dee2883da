package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/hyperengineering/fitsync/internal/config"
	fitsync "github.com/hyperengineering/fitsync/internal/sync"
	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show rows waiting to be pushed, per entity",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	eng, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	counts, err := eng.store.PendingCounts(ctx)
	if err != nil {
		return fmt.Errorf("pending counts: %w", err)
	}

	var total int
	for _, n := range counts {
		total += n
	}

	if jsonOutput {
		items := make(map[string]int, len(counts))
		for k, n := range counts {
			items[string(k)] = n
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"pending": items,
			"total":   total,
		})
	}

	if total == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing pending.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ENTITY\tPENDING")
	for _, kind := range fitsync.Order {
		if n := counts[kind]; n > 0 {
			fmt.Fprintf(w, "%s\t%d\n", kind, n)
		}
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return w.Flush()
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
