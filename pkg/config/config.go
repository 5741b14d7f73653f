// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level runtime configuration for a joyrpc process,
// whether it hosts Exporters, Refers, or both.
type Config struct {
	App        AppConfig        `koanf:"app"`
	Transport  TransportConfig  `koanf:"transport"`
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Registry   RegistryConfig   `koanf:"registry"`
	Cluster    ClusterConfig    `koanf:"cluster"`
	LoadBalance LoadBalanceConfig `koanf:"loadbalance"`
	Executor   ExecutorConfig   `koanf:"executor"`
	Filter     FilterConfig     `koanf:"filter"`
	Health     HealthConfig     `koanf:"health"`
	Shutdown   ShutdownConfig   `koanf:"shutdown"`
}

// AppConfig - общие настройки приложения
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// TransportConfig configures the Channel a Refer dials and an Exporter
// serves (spec §4.3 "one Channel per peer URL, multiplexed over frames").
type TransportConfig struct {
	Kind               string        `koanf:"kind"` // grpc, connect
	Port               int           `koanf:"port"`
	PayloadCap         int           `koanf:"payload_cap"` // bytes; 0 = unlimited
	HeartbeatMode      string        `koanf:"heartbeat_mode"`
	HeartbeatInterval  time.Duration `koanf:"heartbeat_interval"`
	HeartbeatMaxMisses int           `koanf:"heartbeat_max_misses"`
	KeepAlive          KeepAliveConfig `koanf:"keepalive"`
	TLS                TLSConfig     `koanf:"tls"`
}

// KeepAliveConfig - настройки keep-alive на уровне gRPC/connect сервера
type KeepAliveConfig struct {
	MaxConnectionIdle     time.Duration `koanf:"max_connection_idle"`
	MaxConnectionAge      time.Duration `koanf:"max_connection_age"`
	MaxConnectionAgeGrace time.Duration `koanf:"max_connection_age_grace"`
	Time                  time.Duration `koanf:"time"`
	Timeout               time.Duration `koanf:"timeout"`
}

// TLSConfig - настройки TLS для транспорта
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	CAFile   string `koanf:"ca_file"`
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // путь к файлу логов
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // количество бэкапов
	MaxAge     int    `koanf:"max_age"`     // дней
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig - настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig - настройки OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// RegistryConfig selects and configures the registry.Backend a Cluster
// follows (spec §4.4 "Registry Client"). Only the section matching
// Backend is read.
type RegistryConfig struct {
	Backend  string               `koanf:"backend"` // memory, postgres, redis
	Postgres PostgresRegistryConfig `koanf:"postgres"`
	Redis    RedisRegistryConfig  `koanf:"redis"`
}

// PostgresRegistryConfig mirrors registry.PostgresPoolConfig.
type PostgresRegistryConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int32         `koanf:"max_open_conns"`
	MaxIdleConns    int32         `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// RedisRegistryConfig mirrors registry.RedisOptions.
type RedisRegistryConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`
}

// ClusterConfig tunes the live node-set view a Cluster maintains over a
// Registry subscription (spec §4.5).
type ClusterConfig struct {
	DrainDeadline time.Duration `koanf:"drain_deadline"`
}

// LoadBalanceConfig selects the Pick strategy and retry budget a Route
// applies per call (spec §4.6).
type LoadBalanceConfig struct {
	Strategy  string      `koanf:"strategy"` // roundrobin, random, weighted, leastactive, sticky
	StickyKey string      `koanf:"sticky_key"`
	Retry     RetryConfig `koanf:"retry"`
}

// RetryConfig configures loadbalance.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int `koanf:"max_attempts"`
}

// ExecutorConfig tunes the per-Exporter dispatch Executor (spec §4.2
// "Exporter dispatches each inbound call through a bounded Executor").
type ExecutorConfig struct {
	MaxConcurrent int           `koanf:"max_concurrent"` // 0 = unbounded
	RejectPolicy  string        `koanf:"reject_policy"`  // reject, caller_runs, wait_bounded
	WaitTimeout   time.Duration `koanf:"wait_timeout"`
}

// FilterConfig enables and tunes the Filter Chain wrapped around every
// call (spec §4.7).
type FilterConfig struct {
	Enabled   []string         `koanf:"enabled"` // e.g. logging, metrics, audit, limit, auth, validation, trace, cache
	Audit     AuditConfig      `koanf:"audit"`
	RateLimit RateLimitConfig  `koanf:"rate_limit"`
}

// AuditConfig configures filter.AuditFilter.
type AuditConfig struct {
	Backend        string        `koanf:"backend"`
	FilePath       string        `koanf:"file_path"`
	BufferSize     int           `koanf:"buffer_size"`
	FlushPeriod    time.Duration `koanf:"flush_period"`
	ExcludeMethods []string      `koanf:"exclude_methods"`
}

// RateLimitConfig configures filter.LimitFilter's ratelimit.Limiter.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// HealthConfig tunes the Health Probe (spec §6 "Health endpoint").
type HealthConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Port           int           `koanf:"port"`
	Path           string        `koanf:"path"`
	CheckTimeout   time.Duration `koanf:"check_timeout"`
	Doctors        []string      `koanf:"doctors"` // e.g. cluster
}

// ShutdownConfig tunes the Shutdown Coordinator (spec §4.10).
type ShutdownConfig struct {
	DrainDeadline time.Duration `koanf:"drain_deadline"`
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.Transport.Port <= 0 || c.Transport.Port > 65535 {
		errs = append(errs, fmt.Sprintf("transport.port must be between 1 and 65535, got %d", c.Transport.Port))
	}

	validKinds := map[string]bool{"grpc": true, "connect": true}
	if !validKinds[strings.ToLower(c.Transport.Kind)] {
		errs = append(errs, fmt.Sprintf("transport.kind must be one of: grpc, connect, got %s", c.Transport.Kind))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	validBackends := map[string]bool{"memory": true, "postgres": true, "redis": true}
	if !validBackends[strings.ToLower(c.Registry.Backend)] {
		errs = append(errs, fmt.Sprintf("registry.backend must be one of: memory, postgres, redis, got %s", c.Registry.Backend))
	}

	validStrategies := map[string]bool{"roundrobin": true, "random": true, "weighted": true, "leastactive": true, "sticky": true}
	if !validStrategies[strings.ToLower(c.LoadBalance.Strategy)] {
		errs = append(errs, fmt.Sprintf("loadbalance.strategy must be one of: roundrobin, random, weighted, leastactive, sticky, got %s", c.LoadBalance.Strategy))
	}

	validRejectPolicies := map[string]bool{"reject": true, "caller_runs": true, "wait_bounded": true}
	if !validRejectPolicies[strings.ToLower(c.Executor.RejectPolicy)] {
		errs = append(errs, fmt.Sprintf("executor.reject_policy must be one of: reject, caller_runs, wait_bounded, got %s", c.Executor.RejectPolicy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment проверяет режим разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction проверяет продакшн режим
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
