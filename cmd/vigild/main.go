package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/vigil-io/vigil/internal/config"
	"github.com/vigil-io/vigil/internal/layout"
	"github.com/vigil-io/vigil/internal/logging"
	"github.com/vigil-io/vigil/internal/metrics"
	"github.com/vigil-io/vigil/internal/reconcile"
	"github.com/vigil-io/vigil/internal/retention"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Handle version flag before subcommand parsing
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("vigild version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Check for subcommand
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "record":
		runRecord(os.Args[2:])
	case "sweep":
		runSweep(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	case "version":
		fmt.Printf("vigild version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: vigild <command> [options]

Commands:
  record      Start the capture daemon
  sweep       Reconcile the destination tree and delete expired segments
  inspect     Print per-stream segment statistics for the destination tree
  version     Print version information

Run 'vigild <command> --help' for more information on a command.`)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func runRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	rootDir := fs.String("root", "", "Override destination root directory")
	listenAddr := fs.String("listen", "", "Override health endpoint address (e.g., :9090)")
	daemonID := fs.String("daemon-id", "", "Override daemon ID (default: auto-generated UUID)")
	logLevel := fs.String("log-level", "", "Override log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Println(`Usage: vigild record [options]

Start the Vigil capture daemon.

The daemon runs one unbounded capture loop per configured stream, tracks
every produced segment, deletes segments past their retention window, and
optionally ships completed segments to object storage.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI overrides
	if *rootDir != "" {
		cfg.Storage.Root = *rootDir
	}
	if *listenAddr != "" {
		cfg.Observability.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.Observability.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up logger
	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	// Build daemon options
	daemonOpts := DaemonOptions{
		Config:    cfg,
		Logger:    logger,
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
	}

	// Set daemon ID
	if *daemonID != "" {
		daemonOpts.DaemonID = *daemonID
	} else {
		daemonOpts.DaemonID = uuid.New().String()
	}

	// Create and run daemon
	daemon, err := NewDaemon(daemonOpts)
	if err != nil {
		logger.Errorf("failed to create daemon", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the daemon
	errCh := make(chan error, 1)
	go func() {
		errCh <- daemon.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			logger.Errorf("daemon error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := daemon.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.Info("daemon shutdown complete")
}

func runSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	rootDir := fs.String("root", "", "Override destination root directory")
	follow := fs.Bool("follow", false, "Keep sweeping periodically instead of exiting")

	fs.Usage = func() {
		fmt.Println(`Usage: vigild sweep [options]

Reconcile the destination tree against the configured streams and delete
expired or orphaned segments. Runs once and exits unless --follow is set.
No capture processes are started.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *rootDir != "" {
		cfg.Storage.Root = *rootDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	catalog, err := cfg.Catalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stream configuration: %v\n", err)
		os.Exit(1)
	}

	tracker := retention.NewTracker(retention.TrackerConfig{
		MaxDeleteAttempts: cfg.Retention.MaxDeleteAttempts,
	}, logger)
	scanner := reconcile.NewScanner(cfg.Storage.Root, catalog, tracker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats, err := scanner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("tracked %d file(s), removed %d, pruned %d empty dir(s)\n",
		stats.FilesTracked, stats.Removed, stats.DirsPruned)

	if !*follow {
		return
	}

	// Periodic mode: re-scan on the retention interval so segments
	// produced by a daemon elsewhere keep expiring.
	interval := time.Duration(cfg.Retention.SweepIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}

	retentionMetrics := metrics.NewRetentionMetrics()
	tracker.WithMetrics(retentionMetrics)
	scanner.WithMetrics(retentionMetrics)
	metricsServer := metrics.NewServer(cfg.Observability.ListenAddr)
	if err := metricsServer.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start metrics server: %v\n", err)
		os.Exit(1)
	}
	defer metricsServer.Close()
	logger.Infof("metrics server started", map[string]any{
		"addr": metricsServer.Addr(),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})
			return
		case <-ticker.C:
			if _, err := scanner.Run(ctx); err != nil {
				logger.Errorf("periodic sweep failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

// streamStats aggregates the on-disk segments of one stream.
type streamStats struct {
	Name     string
	Segments int
	Bytes    int64
	Oldest   time.Time
	Newest   time.Time
}

func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	rootDir := fs.String("root", "", "Override destination root directory")

	fs.Usage = func() {
		fmt.Println(`Usage: vigild inspect [options]

Walk the destination tree and print per-stream segment statistics.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *rootDir != "" {
		cfg.Storage.Root = *rootDir
	}

	stats, err := collectStreamStats(cfg.Storage.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect failed: %v\n", err)
		os.Exit(1)
	}
	if len(stats) == 0 {
		fmt.Println("No segments found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STREAM\tSEGMENTS\tBYTES\tOLDEST\tNEWEST")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			s.Name, s.Segments, s.Bytes,
			s.Oldest.UTC().Format(time.RFC3339),
			s.Newest.UTC().Format(time.RFC3339))
	}
	w.Flush()
}

// collectStreamStats walks the destination tree and aggregates segment
// counts, sizes, and modification time bounds per stream.
func collectStreamStats(root string) ([]streamStats, error) {
	byStream := make(map[string]*streamStats)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		name, err := layout.StreamForPath(root, path)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		s := byStream[name]
		if s == nil {
			s = &streamStats{Name: name, Oldest: info.ModTime(), Newest: info.ModTime()}
			byStream[name] = s
		}
		s.Segments++
		s.Bytes += info.Size()
		if info.ModTime().Before(s.Oldest) {
			s.Oldest = info.ModTime()
		}
		if info.ModTime().After(s.Newest) {
			s.Newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]streamStats, 0, len(byStream))
	for _, s := range byStream {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}
