// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "JOYRPC_"
	configEnvVar = "CONFIG_PATH"
)

// Loader загружает конфигурацию из разных источников
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader создаёт новый загрузчик конфигурации
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/joyrpc/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption - опция для конфигурации загрузчика
type LoaderOption func(*Loader)

// WithConfigPaths устанавливает пути поиска конфигурации
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix устанавливает префикс переменных окружения
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load загружает конфигурацию с приоритетом:
// 1. Defaults (самый низкий)
// 2. Config file (yaml)
// 3. Environment variables (самый высокий)
func (l *Loader) Load() (*Config, error) {
	// 1. Загружаем значения по умолчанию
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Загружаем из файла конфигурации
	if err := l.loadConfigFile(); err != nil {
		// Файл не обязателен, логируем warning
		fmt.Printf("Warning: %v\n", err)
	}

	// 3. Загружаем из переменных окружения (перезаписывают файл)
	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	// 4. Распаковываем в структуру
	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Валидируем
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults загружает значения по умолчанию
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "joyrpc",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// Transport
		"transport.kind":                                 "grpc",
		"transport.port":                                 20880,
		"transport.payload_cap":                          16 * 1024 * 1024, // 16MB
		"transport.heartbeat_mode":                        "bidirectional",
		"transport.heartbeat_interval":                    30 * time.Second,
		"transport.heartbeat_max_misses":                  3,
		"transport.keepalive.max_connection_idle":         15 * time.Minute,
		"transport.keepalive.max_connection_age":          30 * time.Minute,
		"transport.keepalive.max_connection_age_grace":    5 * time.Minute,
		"transport.keepalive.time":                        5 * time.Minute,
		"transport.keepalive.timeout":                     20 * time.Second,
		"transport.tls.enabled":                           false,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "joyrpc",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "joyrpc",
		"tracing.sample_rate":  0.1,

		// Registry
		"registry.backend":                  "memory",
		"registry.postgres.host":            "localhost",
		"registry.postgres.port":            5432,
		"registry.postgres.database":        "joyrpc",
		"registry.postgres.username":        "postgres",
		"registry.postgres.password":        "",
		"registry.postgres.ssl_mode":        "disable",
		"registry.postgres.max_open_conns":  25,
		"registry.postgres.max_idle_conns":  5,
		"registry.postgres.conn_max_lifetime":  5 * time.Minute,
		"registry.postgres.conn_max_idle_time": 5 * time.Minute,
		"registry.redis.addr":               "localhost:6379",
		"registry.redis.password":           "",
		"registry.redis.db":                 0,
		"registry.redis.pool_size":          10,

		// Cluster
		"cluster.drain_deadline": 5 * time.Second,

		// LoadBalance
		"loadbalance.strategy":          "roundrobin",
		"loadbalance.sticky_key":        "",
		"loadbalance.retry.max_attempts": 3,

		// Executor
		"executor.max_concurrent": 0, // 0 = unbounded
		"executor.reject_policy":  "reject",
		"executor.wait_timeout":   time.Second,

		// Filter
		"filter.enabled":               []string{"logging", "metrics", "trace"},
		"filter.audit.backend":         "stdout",
		"filter.audit.buffer_size":     1000,
		"filter.audit.flush_period":    5 * time.Second,
		"filter.rate_limit.enabled":          false,
		"filter.rate_limit.requests":         100,
		"filter.rate_limit.window":           time.Minute,
		"filter.rate_limit.strategy":         "sliding_window",
		"filter.rate_limit.backend":          "memory",
		"filter.rate_limit.burst_size":       10,
		"filter.rate_limit.cleanup_interval": 5 * time.Minute,

		// Health
		"health.enabled":       true,
		"health.port":          8090,
		"health.path":          "/healthz",
		"health.check_timeout": 5 * time.Second,
		"health.doctors":       []string{"cluster"},

		// Shutdown
		"shutdown.drain_deadline": 10 * time.Second,
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile загружает конфигурацию из файла
func (l *Loader) loadConfigFile() error {
	// Сначала проверяем переменную окружения
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	// Ищем файл по списку путей
	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv загружает конфигурацию из переменных окружения
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		// JOYRPC_TRANSPORT_PORT -> transport.port
		return strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
	}), nil)
}

// MustLoad загружает конфигурацию или паникует
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load - удобная функция для загрузки с дефолтными настройками
func Load() (*Config, error) {
	return NewLoader().Load()
}

// LoadWithServiceDefaults загружает конфигурацию с переопределением для конкретного сервиса
func LoadWithServiceDefaults(serviceName string, defaultPort int) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	// Если порт не задан явно, используем дефолтный для сервиса
	if cfg.Transport.Port == 20880 && defaultPort != 0 {
		cfg.Transport.Port = defaultPort
	}

	// Обновляем имя сервиса
	if cfg.App.Name == "joyrpc" {
		cfg.App.Name = serviceName
	}

	return cfg, nil
}
