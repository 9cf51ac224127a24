package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aluiziolira/go-wb-ranker/export"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/aluiziolira/go-wb-ranker/store"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored ranking runs, or print one run's outcomes",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Number of runs to list")
	historyCmd.Flags().String("run", "", "Print the outcomes of this run as CSV")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)
	if cfg.DBPath == "" {
		return fmt.Errorf("no history database configured (--db or RANKER_DB_PATH)")
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		outcomes, err := s.Outcomes(ctx, runID)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return writeOutcomes(os.Stdout, outcomes)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := s.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTARGET\tSTARTED\tKEYWORDS\tFOUND\tNOT FOUND\tERRORS\tREQUESTS\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.TargetID, r.StartedAt.Local().Format(time.DateTime),
			r.Total, r.Found, r.NotFound, r.Errors, r.Requests,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		)
	}
	return tw.Flush()
}

func writeOutcomes(out io.Writer, outcomes []models.KeywordOutcome) error {
	w := csv.NewWriter(out)
	if err := w.Write(export.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, o := range outcomes {
		if err := w.Write(export.Record(o)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
