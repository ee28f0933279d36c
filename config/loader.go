// Package config loads the eventflow configuration from defaults, an
// optional YAML file, and environment variable overrides, in that order.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("eventflow.yaml").
//	    WithEnvPrefix("EVENTFLOW").
//	    Load()
//
// The package is a leaf: command binaries map its sections onto the
// component configs at wiring time.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete eventflow configuration.
type Config struct {
	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Database configures the event store.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis configures the collected-range cache.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// GitHub configures the GraphQL source.
	GitHub GitHubConfig `yaml:"github" env:"GITHUB"`

	// Collection configures the collection engine.
	Collection CollectionConfig `yaml:"collection" env:"COLLECTION"`

	// Recorder configures the batching event recorder.
	Recorder RecorderConfig `yaml:"recorder" env:"RECORDER"`

	// Metrics configures Prometheus instrumentation.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry configures OpenTelemetry tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// Output paths, "stdout" and "stderr" included
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// Annotate entries with the calling site
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// Attach stack traces at error level
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// DatabaseConfig configures the event store connection.
type DatabaseConfig struct {
	// Driver: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// Host
	Host string `yaml:"host" env:"HOST"`
	// Port
	Port int `yaml:"port" env:"PORT"`
	// User
	User string `yaml:"user" env:"USER"`
	// Password
	Password string `yaml:"password" env:"PASSWORD"`
	// Database name (file path for sqlite)
	Name string `yaml:"name" env:"NAME"`
	// SSL mode (postgres only)
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// Connection pool limits
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// Connection lifetime bounds
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	// Background ping cadence, zero disables
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// RedisConfig configures the collected-range cache. Disabled selects the
// in-process store instead.
type RedisConfig struct {
	// Use Redis for collected ranges
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Address
	Addr string `yaml:"addr" env:"ADDR"`
	// Password
	Password string `yaml:"password" env:"PASSWORD"`
	// Database number
	DB int `yaml:"db" env:"DB"`
	// Connection pool size
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// Minimum idle connections
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// Key prefix for range entries
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// GitHubConfig configures the GraphQL source. Token selects a personal
// access token; AppID plus InstallationID plus PrivateKeyPath selects a
// GitHub App installation instead.
type GitHubConfig struct {
	// GraphQL endpoint, empty selects the public API
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// Personal access token
	Token string `yaml:"token" env:"TOKEN"`
	// GitHub App ID
	AppID string `yaml:"app_id" env:"APP_ID"`
	// App installation ID
	InstallationID int64 `yaml:"installation_id" env:"INSTALLATION_ID"`
	// Path to the App private key PEM
	PrivateKeyPath string `yaml:"private_key_path" env:"PRIVATE_KEY_PATH"`
	// Single round-trip timeout
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Client-side pacing, zero disables
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// Pacing burst size
	Burst int `yaml:"burst" env:"BURST"`
}

// CollectionConfig configures the collection engine.
type CollectionConfig struct {
	// GraphQL page size, 1 to 100
	PageSize int `yaml:"page_size" env:"PAGE_SIZE"`
	// Artifact commits in flight at once
	CommitBatchSize int `yaml:"commit_batch_size" env:"COMMIT_BATCH_SIZE"`
	// Bound on every recorder wait
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"WAIT_TIMEOUT"`
	// Remaining-quota floor before suspending
	QuotaThreshold int `yaml:"quota_threshold" env:"QUOTA_THRESHOLD"`
	// Longest acceptable quota suspension
	QuotaMaxWait time.Duration `yaml:"quota_max_wait" env:"QUOTA_MAX_WAIT"`
	// Slack added to each quota sleep
	QuotaPad time.Duration `yaml:"quota_pad" env:"QUOTA_PAD"`
}

// RecorderConfig configures the batching event recorder.
type RecorderConfig struct {
	// Events per write batch
	MaxBatchSize int `yaml:"max_batch_size" env:"MAX_BATCH_SIZE"`
	// Flush cadence for partial batches
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
	// Pending-event queue capacity
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// Concurrent batch writers
	Workers int `yaml:"workers" env:"WORKERS"`
}

// MetricsConfig configures Prometheus instrumentation.
type MetricsConfig struct {
	// Register and serve collectors
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Metric namespace prefix
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	// Export spans
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC endpoint
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// Reported service name
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// Trace sampling rate
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader assembles a Config step by step.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader returns a Loader with the EVENTFLOW env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "EVENTFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix replaces the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation step run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration. Precedence: defaults, then YAML file,
// then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile merges the YAML file into cfg. A missing file keeps the
// defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct recursively. Each field's env tag is
// appended to the running prefix with an underscore.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated string slices only.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the configuration from defaults and environment
// variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the fields the collection pipeline cannot tolerate being
// wrong. It collects every problem rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if c.Collection.PageSize <= 0 || c.Collection.PageSize > 100 {
		errs = append(errs, "page_size must be between 1 and 100")
	}
	if c.Collection.CommitBatchSize <= 0 {
		errs = append(errs, "commit_batch_size must be positive")
	}
	if c.Recorder.MaxBatchSize <= 0 {
		errs = append(errs, "max_batch_size must be positive")
	}
	if c.GitHub.RequestsPerSecond < 0 {
		errs = append(errs, "requests_per_second must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
