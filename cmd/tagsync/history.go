package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/franksops/tagsync/archive"
	"github.com/franksops/tagsync/engine"
	"github.com/franksops/tagsync/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [QUERY]",
		Short: "List recorded transfers, newest first, optionally fuzzy-filtered by tag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.loadHistory()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				recs = filterHistory(recs, args[0])
			}
			if limit > 0 && len(recs) > limit {
				recs = recs[:limit]
			}
			return printHistory(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most this many transfers, 0 for all")
	cmd.AddCommand(newHistoryExportCmd(a))
	return cmd
}

func newHistoryExportCmd(a *app) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the transfer history as JSON to a directory or s3://bucket/prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("target") {
				target = a.cfg.Archive.Target
			}
			recs, err := a.loadHistory()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			dst, err := archive.Open(ctx, target, a.cfg.Archive.Region)
			if err != nil {
				return err
			}
			loc, err := archive.Export(ctx, dst, archive.ExportName(time.Now()), recs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d transfers to %s\n", len(recs), loc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "export destination (overrides archive.target)")
	return cmd
}

func (a *app) loadHistory() ([]*store.TransferRecord, error) {
	if _, err := os.Stat(a.cfg.HistoryPath()); os.IsNotExist(err) {
		return nil, nil
	}
	history, err := store.NewBoltStore(a.cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer history.Close()
	return history.ListTransfers()
}

// tagSource implements fuzzy.Source over record tags.
type tagSource []*store.TransferRecord

func (s tagSource) String(i int) string { return s[i].Tag }
func (s tagSource) Len() int            { return len(s) }

// filterHistory keeps records whose tag fuzzy-matches query, best match first.
func filterHistory(recs []*store.TransferRecord, query string) []*store.TransferRecord {
	matches := fuzzy.FindFrom(strings.ToLower(query), tagSource(recs))
	out := make([]*store.TransferRecord, 0, len(matches))
	for _, m := range matches {
		out = append(out, recs[m.Index])
	}
	return out
}

func printHistory(w io.Writer, recs []*store.TransferRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No transfers recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTAG\tPROVIDER\tSTATE\tPROGRESS\tELAPSED\tDESTINATION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Tag, orDash(r.Provider), r.State, r.Percent, elapsed(r), orDash(r.DestinationPath))
	}
	return tw.Flush()
}

func elapsed(r *store.TransferRecord) string {
	end := r.EndedAt
	if end.IsZero() {
		end = r.UpdatedAt
	}
	if end.Before(r.StartedAt) {
		return "-"
	}
	return engine.FormatClock(end.Sub(r.StartedAt))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
