package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mohammad-safakhou/marketresearch/config"
	"github.com/mohammad-safakhou/marketresearch/internal/catalog"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
	"github.com/spf13/cobra"
)

func runsCMD() *cobra.Command {
	var cfgPath, traceDir string
	dir := func() (string, error) {
		if traceDir != "" {
			return traceDir, nil
		}
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return "", err
		}
		return cfg.Trace.Dir, nil
	}

	runs := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded trajectories",
	}
	runs.PersistentFlags().StringVar(&traceDir, "trace-dir", "", "trajectory directory (default trace.dir)")
	runs.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	runs.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List runs, flagging interrupted ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dir()
			if err != nil {
				return err
			}
			infos, err := trace.ListRuns(d)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), infos)
		},
	})

	var recompute bool
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dir()
			if err != nil {
				return err
			}
			info, err := trace.FindRun(d, args[0])
			if err != nil {
				return err
			}
			var sum trace.Summary
			switch {
			case recompute || info.Summary == nil:
				if sum, err = trace.RecomputeFile(info.JSONLPath); err != nil {
					return err
				}
			default:
				sum = *info.Summary
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
	show.Flags().BoolVar(&recompute, "recompute", false, "derive the summary from the event log")
	runs.AddCommand(show)

	var limit int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over completed runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dir()
			if err != nil {
				return err
			}
			cat, err := catalog.New()
			if err != nil {
				return err
			}
			defer cat.Close()
			if _, err := cat.LoadDir(d); err != nil {
				return err
			}
			hits, err := cat.Search(args[0], limit)
			if err != nil {
				return err
			}
			return printHits(cmd.OutOrStdout(), hits)
		},
	}
	search.Flags().IntVarP(&limit, "limit", "k", 10, "maximum hits")
	runs.AddCommand(search)
	return runs
}

func printRuns(w io.Writer, infos []trace.RunInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tEVENTS\tTOOLS\tTOPIC")
	for _, r := range infos {
		if r.Summary == nil {
			fmt.Fprintf(tw, "%s\tincomplete\t-\t-\t-\n", r.RunID)
			continue
		}
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%s\n", r.RunID, s.Status, s.EventCount, s.ToolCallCount-s.ToolErrorCount, s.ToolCallCount, s.Topic)
	}
	return tw.Flush()
}

func printHits(w io.Writer, hits []catalog.Hit) error {
	if len(hits) == 0 {
		_, err := fmt.Fprintln(w, "no matching runs")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tRUN ID\tSCORE\tTOPIC")
	for _, h := range hits {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\n", h.Rank, h.RunID, h.Score, h.Topic)
	}
	return tw.Flush()
}
