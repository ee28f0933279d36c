package config

import "time"

// DefaultConfig returns the full default configuration. Section defaults
// mirror the component defaults so a zero-config run behaves the same
// whether wired through this package or directly.
func DefaultConfig() *Config {
	return &Config{
		Log:        DefaultLogConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		GitHub:     DefaultGitHubConfig(),
		Collection: DefaultCollectionConfig(),
		Recorder:   DefaultRecorderConfig(),
		Metrics:    DefaultMetricsConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultDatabaseConfig returns the default event store configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:              "postgres",
		Host:                "localhost",
		Port:                5432,
		User:                "eventflow",
		Password:            "",
		Name:                "eventflow",
		SSLMode:             "disable",
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultRedisConfig returns the default range cache configuration. Redis
// starts disabled; single-process runs use the in-memory store.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "eventflow:ranges:",
	}
}

// DefaultGitHubConfig returns the default GraphQL source configuration.
// Credentials stay empty; runs supply a token via flag or environment.
func DefaultGitHubConfig() GitHubConfig {
	return GitHubConfig{
		Endpoint:          "",
		Token:             "",
		AppID:             "",
		InstallationID:    0,
		PrivateKeyPath:    "",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 0,
		Burst:             0,
	}
}

// DefaultCollectionConfig returns the default engine configuration.
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		PageSize:        100,
		CommitBatchSize: 10,
		WaitTimeout:     60 * time.Second,
		QuotaThreshold:  100,
		QuotaMaxWait:    90 * time.Minute,
		QuotaPad:        2 * time.Second,
	}
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		MaxBatchSize:  50,
		FlushInterval: 100 * time.Millisecond,
		QueueSize:     1000,
		Workers:       2,
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "eventflow",
	}
}

// DefaultTelemetryConfig returns the default tracing configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "eventflow",
		SampleRate:   0.1,
	}
}
