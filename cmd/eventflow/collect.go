package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/cache"
	"github.com/BaSui01/eventflow/collector"
	"github.com/BaSui01/eventflow/config"
	"github.com/BaSui01/eventflow/github"
	"github.com/BaSui01/eventflow/internal/metrics"
	"github.com/BaSui01/eventflow/internal/telemetry"
	"github.com/BaSui01/eventflow/recorder"
	"github.com/BaSui01/eventflow/store"
	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// runCollect wires the full pipeline and runs one collection pass:
// config -> store -> range cache -> GraphQL client -> recorder ->
// metric families -> scheduler.
func runCollect(args []string) {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fromISO := fs.String("from", "", "Start of the collection range (RFC 3339 or YYYY-MM-DD)")
	toISO := fs.String("to", "", "End of the collection range (default: now)")
	artifactsPath := fs.String("artifacts", "", "File listing owner/name repositories, one per line")
	groupName := fs.String("group", "default", "Group name for the collected repositories")
	token := fs.String("token", "", "GitHub token (overrides config and environment)")
	concurrency := fs.Int("concurrency", 0, "Artifact commit batch size")
	resume := fs.Bool("resume", false, "Skip groups completed by a prior run over the range")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		cfg.GitHub.Token = *token
	}
	if *concurrency > 0 {
		cfg.Collection.CommitBatchSize = *concurrency
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	group, err := buildGroup(*groupName, *artifactsPath, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid repository list: %v\n", err)
		os.Exit(1)
	}
	if len(group.Artifacts) == 0 {
		fmt.Fprintln(os.Stderr, "No repositories to collect: pass owner/name arguments or -artifacts <file>")
		os.Exit(1)
	}

	r, err := parseRange(*fromISO, *toISO)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid range: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting eventflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open event store", zap.Error(err))
	}
	defer st.Close()

	// Shared postgres and mysql deployments run `eventflow migrate up`
	// instead; local sqlite files get their schema on first use.
	if cfg.Database.Driver == store.DriverSQLite {
		if err := st.AutoMigrate(); err != nil {
			logger.Fatal("Schema migration failed", zap.Error(err))
		}
	}

	rangeStore, closeCache := buildRangeStore(cfg, logger)
	defer closeCache()
	ts := cache.NewTimeSeriesCache(rangeStore, logger)

	tokens, err := buildTokenSource(cfg.GitHub, logger)
	if err != nil {
		logger.Fatal("Failed to build token source", zap.Error(err))
	}

	client := github.NewClient(github.ClientConfig{
		Endpoint:          cfg.GitHub.Endpoint,
		Timeout:           cfg.GitHub.Timeout,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Burst:             cfg.GitHub.Burst,
	}, tokens, logger)

	rec := recorder.NewEventRecorder(recorder.Config{
		MaxBatchSize:  cfg.Recorder.MaxBatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
		QueueSize:     cfg.Recorder.QueueSize,
		Workers:       cfg.Recorder.Workers,
	}, st, logger)

	colCfg := collector.Config{
		PageSize:        cfg.Collection.PageSize,
		CommitBatchSize: cfg.Collection.CommitBatchSize,
		WaitTimeout:     cfg.Collection.WaitTimeout,
		Gate: github.GateConfig{
			Threshold: cfg.Collection.QuotaThreshold,
			MaxWait:   cfg.Collection.QuotaMaxWait,
			Pad:       cfg.Collection.QuotaPad,
		},
	}

	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	sched := collector.NewScheduler([]collector.MetricCollector{
		collector.NewStargazerCollector(client, ts, rec, colCfg, logger),
		collector.NewForkCollector(client, ts, rec, colCfg, logger),
	}, st, m, logger)

	report, runErr := sched.Run(ctx, []types.ArtifactGroup{group}, r, *resume)

	rec.Close()

	if m != nil {
		stats := rec.Stats()
		m.SetRecorderStats(stats.Batches, stats.Committed, stats.Failed, stats.BatchEfficiency())
		dbStats := st.Stats()
		m.RecordDBConnections(cfg.Database.Name, dbStats.OpenConnections, dbStats.Idle)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}

	if report != nil {
		printReport(report)
	}
	if runErr != nil {
		logger.Error("Collection run aborted", zap.Error(runErr))
		os.Exit(1)
	}
	if report.Failed() {
		os.Exit(1)
	}
}

// buildGroup assembles the artifact group from positional owner/name
// arguments plus the optional -artifacts file.
func buildGroup(name, path string, args []string) (types.ArtifactGroup, error) {
	locators := append([]string{}, args...)

	if path != "" {
		fromFile, err := readArtifactList(path)
		if err != nil {
			return types.ArtifactGroup{}, err
		}
		locators = append(locators, fromFile...)
	}

	artifacts := make([]types.Artifact, 0, len(locators))
	for _, s := range locators {
		loc, err := github.ParseLocator(s)
		if err != nil {
			return types.ArtifactGroup{}, err
		}
		artifacts = append(artifacts, loc.Artifact())
	}
	return types.NewArtifactGroup(name, artifacts...), nil
}

// readArtifactList reads newline-delimited repository locators, skipping
// blank lines and #-comments.
func readArtifactList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

// parseRange turns the -from/-to flags into a collection range. A bare
// YYYY-MM-DD date means midnight UTC; -to defaults to now.
func parseRange(fromISO, toISO string) (timerange.Range, error) {
	if fromISO == "" {
		return timerange.Range{}, fmt.Errorf("missing required flag: -from")
	}
	if toISO == "" {
		toISO = time.Now().UTC().Format(time.RFC3339)
	}
	return timerange.FromISO(normalizeISO(fromISO), normalizeISO(toISO))
}

func normalizeISO(s string) string {
	if len(s) == len("2006-01-02") {
		return s + "T00:00:00Z"
	}
	return s
}

// buildTokenSource picks App installation auth when configured, otherwise a
// static token.
func buildTokenSource(cfg config.GitHubConfig, logger *zap.Logger) (github.TokenSource, error) {
	if cfg.AppID != "" && cfg.PrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		return github.NewAppTokenSource(cfg.AppID, cfg.InstallationID, pem, github.AppTokenOptions{}, logger)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("no GitHub credentials: set -token, EVENTFLOW_GITHUB_TOKEN, or the github section of the config file")
	}
	return github.NewStaticTokenSource(cfg.Token), nil
}

// buildRangeStore returns the covered-range store: Redis when enabled so
// separate runs share coverage, the in-process store otherwise. The returned
// close func releases the Redis connection.
func buildRangeStore(cfg *config.Config, logger *zap.Logger) (cache.RangeStore, func()) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryStore(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	return cache.NewRedisStore(client, cfg.Redis.KeyPrefix, logger), func() { client.Close() }
}

// printReport writes the human-readable run summary to stdout.
func printReport(report *collector.RunReport) {
	fmt.Printf("Run %s over %s\n", report.RunID, report.Range.String())
	for _, out := range report.Outcomes {
		fmt.Printf("  %-12s %-16s collected=%d skipped=%d failed=%d\n",
			out.Family, out.Group, len(out.Collected), len(out.Skipped), len(out.Errors))
		for _, err := range out.Errors {
			fmt.Printf("    error: %v\n", err)
		}
	}
	for _, name := range report.Resumed {
		fmt.Printf("  %-29s resumed from a prior completed run\n", name)
	}
	fmt.Printf("Elapsed %s, %d artifacts collected\n",
		report.Finished.Sub(report.Started).Round(time.Millisecond), report.TotalCollected())
}
