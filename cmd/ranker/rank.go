package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/export"
	"github.com/aluiziolira/go-wb-ranker/keywords"
	"github.com/aluiziolira/go-wb-ranker/metrics"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/aluiziolira/go-wb-ranker/ranker"
	"github.com/aluiziolira/go-wb-ranker/search"
	"github.com/aluiziolira/go-wb-ranker/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank a product for every keyword in a CSV file",
	Example: `  ranker rank --link https://www.wildberries.ru/catalog/12345/detail.aspx --keywords keywords.csv
  ranker rank --target-id 12345 --name "iphone 15 case" --keywords keywords.csv --format dual`,
	RunE: runRank,
}

func init() {
	addRankFlags(rankCmd.Flags())
	rootCmd.AddCommand(rankCmd)
}

func addRankFlags(f *pflag.FlagSet) {
	f.String("link", "", "Product link")
	f.String("target-id", "", "Product id (alternative to --link)")
	f.String("name", "", "Product name used by the relevance filter")
	f.String("brand", "", "Product brand used by the relevance filter")
	f.StringSlice("attr", nil, "Product attributes used by the relevance filter")
	f.StringP("keywords", "k", "", "Keyword CSV file (keyword[,frequency])")

	f.String("search-url", "", "Search API endpoint")
	f.Int("pages", 0, "Maximum pages scanned per keyword")
	f.Int("concurrency", 0, "Concurrent keyword walks")
	f.Duration("timeout", 0, "Per-request timeout")
	f.Int("retries", 0, "Retry attempts per page")
	f.Float64("backoff-factor", 0, "Exponential backoff factor")
	f.Duration("retry-backoff", 0, "Initial retry backoff")
	f.String("delay", "", "Request delay window in seconds, e.g. 0.05,0.2")
	f.Float64("rate", 0, "Global request rate limit per second (0 disables)")
	f.Int("max-keywords", 0, "Maximum keywords accepted per run")
	f.Duration("max-time", 0, "Run deadline")
	f.Duration("deadline-grace", 0, "Time in-flight walks may keep running after the deadline")
	f.Bool("no-filter", false, "Disable the keyword relevance filter")
	f.Bool("respect-robots", false, "Respect robots.txt directives")
	f.StringP("output", "o", "", "Output file path")
	f.String("format", "", "Output format: csv, json, or dual")
	f.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
}

func runRank(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRankFlags(cmd, &cfg); err != nil {
		return err
	}
	setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	target, err := targetFromFlags(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("keywords")
	if path == "" {
		return fmt.Errorf("--keywords is required")
	}
	raw, err := keywords.LoadFile(path)
	if err != nil {
		return err
	}

	m := metrics.New()
	client, err := search.New(cfg, m)
	if err != nil {
		return fmt.Errorf("initialising search client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight pages")
	}()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	slog.Info("starting ranking run",
		slog.String("target", target.ID),
		slog.Int("keywords", len(raw)),
		slog.Int("concurrency", cfg.ConcurrencyLimit),
		slog.Int("max_pages", cfg.MaxPages),
		slog.Duration("deadline", cfg.MaxExecutionTime),
	)

	runCtx, stopProgress := startProgressReporting(ctx, progressInterval)
	report, runErr := ranker.NewEngine(cfg, client, m).Run(runCtx, target, raw)
	stopProgress()
	if runErr != nil && !errors.Is(runErr, ranker.ErrDeadlineExceeded) && !errors.Is(runErr, ranker.ErrRunCancelled) {
		return runErr
	}

	if err := writeReport(cfg, report); err != nil {
		return err
	}
	if cfg.DBPath != "" {
		if err := saveHistory(cfg.DBPath, report); err != nil {
			slog.Error("saving run history failed", slog.Any("error", err))
		}
	}

	printSummary(report, cfg.OutputFile, runErr)
	return runErr
}

func applyRankFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("search-url") {
		cfg.SearchURL, _ = f.GetString("search-url")
	}
	if f.Changed("pages") {
		cfg.MaxPages, _ = f.GetInt("pages")
	}
	if f.Changed("concurrency") {
		cfg.ConcurrencyLimit, _ = f.GetInt("concurrency")
	}
	if f.Changed("timeout") {
		cfg.RequestTimeout, _ = f.GetDuration("timeout")
	}
	if f.Changed("retries") {
		cfg.RetryAttempts, _ = f.GetInt("retries")
	}
	if f.Changed("backoff-factor") {
		cfg.BackoffFactor, _ = f.GetFloat64("backoff-factor")
	}
	if f.Changed("retry-backoff") {
		cfg.RetryBackoff, _ = f.GetDuration("retry-backoff")
	}
	if f.Changed("delay") {
		v, _ := f.GetString("delay")
		minDelay, maxDelay, err := config.ParseDelayRange(v)
		if err != nil {
			return fmt.Errorf("--delay: %w", err)
		}
		cfg.DelayMin, cfg.DelayMax = minDelay, maxDelay
	}
	if f.Changed("rate") {
		cfg.RatePerSecond, _ = f.GetFloat64("rate")
	}
	if f.Changed("max-keywords") {
		cfg.MaxKeywords, _ = f.GetInt("max-keywords")
	}
	if f.Changed("max-time") {
		cfg.MaxExecutionTime, _ = f.GetDuration("max-time")
	}
	if f.Changed("deadline-grace") {
		cfg.DeadlineGrace, _ = f.GetDuration("deadline-grace")
	}
	if f.Changed("no-filter") {
		noFilter, _ := f.GetBool("no-filter")
		cfg.RelevanceFilter = !noFilter
	}
	if f.Changed("respect-robots") {
		cfg.RespectRobotsTxt, _ = f.GetBool("respect-robots")
	}
	if f.Changed("output") {
		cfg.OutputFile, _ = f.GetString("output")
	}
	if f.Changed("format") {
		v, _ := f.GetString("format")
		cfg.OutputFormat = strings.ToLower(v)
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
	return nil
}

func targetFromFlags(cmd *cobra.Command) (models.TargetProduct, error) {
	f := cmd.Flags()
	link, _ := f.GetString("link")
	id, _ := f.GetString("target-id")
	if link == "" && id == "" {
		return models.TargetProduct{}, fmt.Errorf("one of --link or --target-id is required")
	}
	if link != "" {
		parsed, err := search.ProductIDFromURL(link)
		if err != nil {
			return models.TargetProduct{}, err
		}
		if id != "" && id != parsed {
			return models.TargetProduct{}, fmt.Errorf("--target-id %s does not match link id %s", id, parsed)
		}
		id = parsed
	}

	name, _ := f.GetString("name")
	brand, _ := f.GetString("brand")
	attrs, _ := f.GetStringSlice("attr")
	return models.TargetProduct{ID: id, Name: name, Brand: brand, Attributes: attrs}, nil
}

func writeReport(cfg config.Config, report models.Report) (err error) {
	writer, err := export.New(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close writer: %w", closeErr)
		}
	}()

	if err := writer.Write(report.Outcomes); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}
	return nil
}

func saveHistory(path string, report models.Report) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.SaveReport(ctx, report)
}

func printSummary(report models.Report, outputFile string, runErr error) {
	s := report.Summary()
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if runErr != nil {
		fmt.Printf("Ranking interrupted: %v\n", runErr)
	} else {
		fmt.Println("Ranking complete")
	}

	fmt.Printf("  Run:           %s\n", report.RunID)
	fmt.Printf("  Target:        %s\n", report.Target.ID)
	fmt.Printf("  Keywords:      %d (%d filtered out)\n", s.Total, report.Filtered)
	fmt.Printf("  Found:         %d (%.1f%%)\n", s.Found, s.FoundPercent)
	fmt.Printf("  Not found:     %d\n", s.NotFound)
	fmt.Printf("  Errors:        %d\n", s.Errors)
	if s.Found > 0 {
		fmt.Printf("  Position:      avg %.1f, best %d, worst %d\n", s.AvgPosition, s.BestPosition, s.WorstPosition)
	}
	if s.MaxPrice > 0 {
		fmt.Printf("  Price:         min %.2f, avg %.2f, max %.2f\n", s.MinPrice, s.AvgPrice, s.MaxPrice)
	}
	fmt.Printf("  Pages/keyword: %.2f\n", s.AvgPages)
	fmt.Printf("  Requests:      %d\n", report.Requests)
	fmt.Printf("  Duration:      %.1fs\n", s.ElapsedSeconds)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}
