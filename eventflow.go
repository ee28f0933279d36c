// Package eventflow provides a top-level convenience entry point for running
// incremental collection with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/eventflow"
//
//	e, err := eventflow.New(eventflow.WithToken(os.Getenv("GITHUB_TOKEN")))
//	defer e.Close()
//	report, err := e.Collect(ctx, "2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z", "golang/go")
//
// By default the engine writes to a local sqlite file and keeps covered
// ranges in process memory. Databases the engine opens itself are
// auto-migrated; pass a prepared [store.Store] through [WithStore] to manage
// the schema with the migrate tooling instead.
package eventflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/cache"
	"github.com/BaSui01/eventflow/collector"
	"github.com/BaSui01/eventflow/github"
	"github.com/BaSui01/eventflow/internal/metrics"
	"github.com/BaSui01/eventflow/recorder"
	"github.com/BaSui01/eventflow/store"
	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// Metric family names accepted by [WithFamilies].
const (
	FamilyStargazers = "stargazers"
	FamilyForks      = "forks"
)

// Option configures the engine created by [New].
type Option func(*options)

type options struct {
	logger *zap.Logger

	dbDriver string
	dbDSN    string
	pool     store.PoolConfig
	store    *store.Store

	token          string
	appID          string
	installationID int64
	privateKeyPEM  []byte
	tokenSource    github.TokenSource

	redisClient *redis.Client
	redisPrefix string
	rangeStore  cache.RangeStore

	clientCfg    github.ClientConfig
	collectorCfg collector.Config
	recorderCfg  recorder.Config

	metricsNamespace string
	families         []string
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDatabase points the engine at a database it should open and own.
// Defaults to a local "eventflow.db" sqlite file.
func WithDatabase(driver, dsn string) Option {
	return func(o *options) {
		o.dbDriver = driver
		o.dbDSN = dsn
	}
}

// WithPool tunes the connection pool of an engine-owned database.
func WithPool(cfg store.PoolConfig) Option {
	return func(o *options) { o.pool = cfg }
}

// WithStore supplies a prepared event store. The caller keeps ownership:
// the engine never migrates or closes it.
func WithStore(st *store.Store) Option {
	return func(o *options) { o.store = st }
}

// WithToken authenticates with a personal access token.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithAppAuth authenticates as a GitHub App installation. privateKeyPEM is
// the app's RSA key in PEM form.
func WithAppAuth(appID string, installationID int64, privateKeyPEM []byte) Option {
	return func(o *options) {
		o.appID = appID
		o.installationID = installationID
		o.privateKeyPEM = privateKeyPEM
	}
}

// WithTokenSource supplies a pre-built token source, taking precedence over
// [WithToken] and [WithAppAuth].
func WithTokenSource(ts github.TokenSource) Option {
	return func(o *options) { o.tokenSource = ts }
}

// WithRedisRanges keeps covered-range state in Redis so separate processes
// share coverage. The engine closes the client on [Engine.Close]. An empty
// prefix keeps the default key prefix.
func WithRedisRanges(client *redis.Client, keyPrefix string) Option {
	return func(o *options) {
		o.redisClient = client
		o.redisPrefix = keyPrefix
	}
}

// WithRangeStore supplies a pre-built covered-range store, taking precedence
// over [WithRedisRanges].
func WithRangeStore(rs cache.RangeStore) Option {
	return func(o *options) { o.rangeStore = rs }
}

// WithClientConfig tunes the GraphQL client (endpoint, timeout, pacing).
func WithClientConfig(cfg github.ClientConfig) Option {
	return func(o *options) { o.clientCfg = cfg }
}

// WithCollectorConfig tunes the collection flow (page size, commit batches,
// wait timeout, quota gate).
func WithCollectorConfig(cfg collector.Config) Option {
	return func(o *options) { o.collectorCfg = cfg }
}

// WithRecorderConfig tunes event batching.
func WithRecorderConfig(cfg recorder.Config) Option {
	return func(o *options) { o.recorderCfg = cfg }
}

// WithMetrics registers Prometheus collectors under the given namespace.
// Register at most one metrics-enabled engine per process.
func WithMetrics(namespace string) Option {
	return func(o *options) { o.metricsNamespace = namespace }
}

// WithFamilies restricts collection to the named metric families.
// Defaults to every family.
func WithFamilies(names ...string) Option {
	return func(o *options) { o.families = names }
}

// Engine bundles a configured scheduler with the resources it owns.
type Engine struct {
	scheduler *collector.Scheduler
	store     *store.Store
	recorder  *recorder.EventRecorder
	ownsStore bool
	ownsRedis *redis.Client
	logger    *zap.Logger
}

// New wires a ready-to-run collection engine. At minimum, credentials must
// be supplied via [WithToken], [WithAppAuth], or [WithTokenSource].
func New(opts ...Option) (*Engine, error) {
	o := &options{
		dbDriver: store.DriverSQLite,
		dbDSN:    "eventflow.db",
		pool:     store.DefaultPoolConfig(),
		families: []string{FamilyStargazers, FamilyForks},
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	tokens, err := resolveTokenSource(o)
	if err != nil {
		return nil, err
	}

	st := o.store
	ownsStore := false
	if st == nil {
		db, err := store.Open(o.dbDriver, o.dbDSN, o.logger)
		if err != nil {
			return nil, err
		}
		st, err = store.NewStore(db, o.pool, o.logger)
		if err != nil {
			return nil, err
		}
		if err := st.AutoMigrate(); err != nil {
			st.Close()
			return nil, err
		}
		ownsStore = true
	}

	rangeStore := o.rangeStore
	if rangeStore == nil {
		if o.redisClient != nil {
			rangeStore = cache.NewRedisStore(o.redisClient, o.redisPrefix, o.logger)
		} else {
			rangeStore = cache.NewMemoryStore()
		}
	}
	ts := cache.NewTimeSeriesCache(rangeStore, o.logger)

	client := github.NewClient(o.clientCfg, tokens, o.logger)
	rec := recorder.NewEventRecorder(o.recorderCfg, st, o.logger)

	collectors, err := buildFamilies(o.families, client, ts, rec, o.collectorCfg, o.logger)
	if err != nil {
		rec.Close()
		if ownsStore {
			st.Close()
		}
		return nil, err
	}

	var m *metrics.Collector
	if o.metricsNamespace != "" {
		m = metrics.NewCollector(o.metricsNamespace, o.logger)
	}

	return &Engine{
		scheduler: collector.NewScheduler(collectors, st, m, o.logger),
		store:     st,
		recorder:  rec,
		ownsStore: ownsStore,
		ownsRedis: o.redisClient,
		logger:    o.logger,
	}, nil
}

func resolveTokenSource(o *options) (github.TokenSource, error) {
	if o.tokenSource != nil {
		return o.tokenSource, nil
	}
	if o.appID != "" {
		return github.NewAppTokenSource(o.appID, o.installationID, o.privateKeyPEM, github.AppTokenOptions{}, o.logger)
	}
	if o.token != "" {
		return github.NewStaticTokenSource(o.token), nil
	}
	return nil, fmt.Errorf("credentials are required: use WithToken, WithAppAuth, or WithTokenSource")
}

func buildFamilies(names []string, client *github.Client, ts *cache.TimeSeriesCache, rec *recorder.EventRecorder, cfg collector.Config, logger *zap.Logger) ([]collector.MetricCollector, error) {
	out := make([]collector.MetricCollector, 0, len(names))
	for _, name := range names {
		switch name {
		case FamilyStargazers:
			out = append(out, collector.NewStargazerCollector(client, ts, rec, cfg, logger))
		case FamilyForks:
			out = append(out, collector.NewForkCollector(client, ts, rec, cfg, logger))
		default:
			return nil, fmt.Errorf("unknown metric family %q (known: %s, %s)", name, FamilyStargazers, FamilyForks)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one metric family is required")
	}
	return out, nil
}

// Run collects every configured family over the groups for the range.
// Per-artifact failures stay in the report; the returned error reports only
// run-fatal conditions.
func (e *Engine) Run(ctx context.Context, groups []types.ArtifactGroup, r timerange.Range, resume bool) (*collector.RunReport, error) {
	return e.scheduler.Run(ctx, groups, r, resume)
}

// Collect is the one-call path: it parses the RFC 3339 range bounds and
// owner/name repository locators, puts the repositories in one group, and
// runs every configured family over them.
func (e *Engine) Collect(ctx context.Context, fromISO, toISO string, repos ...string) (*collector.RunReport, error) {
	r, err := timerange.FromISO(fromISO, toISO)
	if err != nil {
		return nil, err
	}

	artifacts := make([]types.Artifact, 0, len(repos))
	for _, s := range repos {
		loc, err := github.ParseLocator(s)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, loc.Artifact())
	}
	group := types.NewArtifactGroup("default", artifacts...)

	return e.Run(ctx, []types.ArtifactGroup{group}, r, false)
}

// Store exposes the event store for queries against collected data.
func (e *Engine) Store() *store.Store {
	return e.store
}

// RecorderStats returns the write-pipeline counters accumulated so far.
func (e *Engine) RecorderStats() recorder.Stats {
	return e.recorder.Stats()
}

// Close flushes the recorder and releases every resource the engine owns.
// Stores and clients supplied by the caller stay open.
func (e *Engine) Close() error {
	e.recorder.Close()

	var errs []error
	if e.ownsStore {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.ownsRedis != nil {
		if err := e.ownsRedis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
