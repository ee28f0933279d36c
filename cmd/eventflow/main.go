// eventflow is the collection engine entry point.
//
// Usage:
//
//	eventflow collect -from 2024-01-01 golang/go      # collect one repository
//	eventflow collect -config config.yaml -resume     # resume a configured run
//	eventflow migrate up                              # apply schema migrations
//	eventflow migrate status                          # show migration status
//	eventflow health                                  # probe database and cache
//	eventflow version                                 # show build information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/eventflow/config"
	"github.com/BaSui01/eventflow/store"
)

// Build information, injected via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "collect":
		runCollect(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runHealthCheck probes the configured database and, when enabled, the Redis
// range cache. There is no resident server to ask, so the probe dials the
// backends directly.
func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 5*time.Second, "Probe timeout")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := openStore(cfg, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: database ping: %v\n", err)
		os.Exit(1)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed: redis ping: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("eventflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`eventflow - incremental GitHub activity collection

Usage:
  eventflow <command> [options]

Commands:
  collect   Run a collection pass over the given repositories
  migrate   Database migration commands
  version   Show version information
  health    Check database and cache connectivity
  help      Show this help message

Options for 'collect':
  --config <path>      Path to configuration file (YAML)
  --from <time>        Start of the collection range (RFC 3339 or YYYY-MM-DD)
  --to <time>          End of the collection range (default: now)
  --artifacts <path>   File listing owner/name repositories, one per line
  --group <name>       Group name for the collected repositories
  --token <token>      GitHub token (overrides config and environment)
  --concurrency <n>    Artifact commit batch size
  --resume             Skip groups completed by a prior run over the range

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status
  migrate version   Show current migration version
  migrate goto <v>  Migrate to a specific version
  migrate force <v> Force set migration version
  migrate reset     Rollback all migrations

Examples:
  eventflow collect -from 2024-01-01 -to 2024-02-01 golang/go
  eventflow collect -config /etc/eventflow/config.yaml -artifacts repos.txt -resume
  eventflow migrate up
  eventflow health
  eventflow version`)
}

// loadConfig runs the loader chain: defaults, then the YAML file when given,
// then EVENTFLOW_* environment overrides.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// openStore connects gorm to the configured database and applies the
// configured pool limits.
func openStore(cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, err
	}
	return store.NewStore(db, store.PoolConfig{
		MaxIdleConns:        cfg.Database.MaxIdleConns,
		MaxOpenConns:        cfg.Database.MaxOpenConns,
		ConnMaxLifetime:     cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:     cfg.Database.ConnMaxIdleTime,
		HealthCheckInterval: cfg.Database.HealthCheckInterval,
	}, logger)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
