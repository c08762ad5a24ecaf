package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
	"github.com/aluiziolira/go-scrape-tululu/scraper"
	"github.com/aluiziolira/go-scrape-tululu/storage"
)

const (
	exitOK    = 0
	exitSetup = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	startID, endID, code, ok := parseArgs(args, stderr)
	if !ok {
		return code
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitSetup
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return exitSetup
	}

	if err := resetLogFile(cfg.LogFile); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitSetup
	}
	logSink := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}
	defer logSink.Close()

	logger := newLogger(logSink, cfg.Verbose)
	slog.SetDefault(logger)

	fetcher, err := fetch.NewFetcher(cfg)
	if err != nil {
		logger.Error("initialising fetcher", slog.Any("error", err))
		fmt.Fprintf(stderr, "%v\n", err)
		return exitSetup
	}

	assets, err := storage.NewAssets(fetcher, cfg.DestDir, cfg.PlaceholderCache)
	if err != nil {
		logger.Error("initialising storage", slog.Any("error", err))
		fmt.Fprintf(stderr, "%v\n", err)
		return exitSetup
	}

	opts := []scraper.Option{scraper.WithOutput(stdout, stderr)}

	var (
		catalog *pipeline.Pipeline
		writer  pipeline.OutputWriter
	)
	if cfg.CatalogFile != "" {
		writer, err = pipeline.NewOutputWriter(cfg.CatalogFormat, filepath.Join(cfg.DestDir, cfg.CatalogFile))
		if err != nil {
			logger.Error("creating catalog writer", slog.Any("error", err))
			fmt.Fprintf(stderr, "%v\n", err)
			return exitSetup
		}
		catalog = pipeline.NewPipeline(writer, cfg.CatalogBatchSize)
		opts = append(opts, scraper.WithCatalog(catalog))
	}

	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = newProgressBar(endID-startID, stderr)
		opts = append(opts, scraper.WithProgress(bar))
	}

	s, err := scraper.New(cfg, fetcher, assets, logger, opts...)
	if err != nil {
		logger.Error("initialising scraper", slog.Any("error", err))
		fmt.Fprintf(stderr, "%v\n", err)
		return exitSetup
	}
	fetcher.SetObserver(s.Metrics)

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics, logger)

	logger.Info("starting download",
		slog.String("base_url", cfg.BaseURL),
		slog.String("dest_dir", cfg.DestDir),
		slog.Int("start_id", startID),
		slog.Int("end_id", endID),
	)

	result, err := s.Run(ctx, startID, endID)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		logger.Error("download failed", slog.Any("error", err))
		fmt.Fprintf(stderr, "%v\n", err)
		return exitSetup
	}
	if result.Interrupted {
		logger.Info("shutdown signal received, range left incomplete")
	}

	if catalog != nil {
		if err := catalog.Close(); err != nil {
			logger.Error("catalog shutdown failed", slog.Any("error", err))
		} else if result.Saved > 0 {
			if err := writer.Validate(); err != nil {
				logger.Error("catalog validation failed", slog.Any("error", err))
			}
		}
		stats := catalog.Stats()
		logger.Info("catalog written",
			slog.String("file", cfg.CatalogFile),
			slog.Int64("records", stats.Processed),
			slog.Any("validation_errors", stats.ValidationErrors),
		)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	logger.Info("run summary",
		slog.String("run_id", result.RunID),
		slog.Int("saved", result.Saved),
		slog.Int("absent", result.Absent),
		slog.Int("network_faults", result.NetworkFaults),
		slog.Int("parse_faults", result.ParseFaults),
		slog.Int("failed", result.Failed),
		slog.Any("errors_by_type", result.ErrorsByType),
	)
	return exitOK
}

// parseArgs reads the two positional identifiers. ok is false when the
// process should exit with code.
func parseArgs(args []string, stderr io.Writer) (startID, endID, code int, ok bool) {
	fs := flag.NewFlagSet("tululu", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Скачивает книги в указанном диапазоне")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "usage: tululu [-h] start_id end_id")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "positional arguments:")
		fmt.Fprintln(stderr, "  start_id    Начало диапазона")
		fmt.Fprintln(stderr, "  end_id      Конец диапазона")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, 0, exitOK, false
		}
		fmt.Fprintf(stderr, "tululu: %v\n", err)
		return 0, 0, exitUsage, false
	}

	positional := fs.Args()
	if len(positional) != 2 {
		fmt.Fprintf(stderr, "tululu: expected start_id and end_id, got %d argument(s)\n", len(positional))
		fs.Usage()
		return 0, 0, exitUsage, false
	}

	startID, err := strconv.Atoi(positional[0])
	if err != nil {
		fmt.Fprintf(stderr, "tululu: start_id: invalid int value: %q\n", positional[0])
		return 0, 0, exitUsage, false
	}
	endID, err = strconv.Atoi(positional[1])
	if err != nil {
		fmt.Fprintf(stderr, "tululu: end_id: invalid int value: %q\n", positional[1])
		return 0, 0, exitUsage, false
	}
	if startID > endID {
		fmt.Fprintf(stderr, "tululu: start_id %d is greater than end_id %d\n", startID, endID)
		return 0, 0, exitUsage, false
	}
	return startID, endID, exitOK, true
}

// resetLogFile empties the log left by a previous run. Rotated backups are
// kept; only the active file starts over.
func resetLogFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Truncate(path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset log file %q: %w", path, err)
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("books"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(total > 0),
		progressbar.OptionClearOnFinish(),
	)
}

func startMetricsServer(addr string, metrics *scraper.Metrics, logger *slog.Logger) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return server
}
