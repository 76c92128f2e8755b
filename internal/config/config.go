package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	AnimationStartZero    = "zero"
	AnimationStartCurrent = "current"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	StoreBackend string

	// SQLite
	SQLitePath      string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool

	PostgresDSN string

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	DisplayTimezone  *time.Location
	HistoryLimit     int
	DeleteBatchSize  int
	DeleteConfirmTTL time.Duration

	GaugeAnimationDuration time.Duration
	GaugeAnimationStart    string

	RateLimitRPS   float64
	RateLimitBurst int

	// SimulateInterval paces cmd/simulate.
	SimulateInterval time.Duration
}

func LoadFromEnv() (Config, error) {
	appEnv := envString("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	backend := strings.ToLower(envString("STORE_BACKEND", BackendSQLite))
	switch backend {
	case BackendSQLite, BackendPostgres, BackendMemory:
	default:
		return Config{}, fmt.Errorf("invalid STORE_BACKEND %q (allowed: sqlite, postgres, memory)", backend)
	}

	cfg := Config{
		AppEnv:       appEnv,
		LogLevel:     level,
		HTTPAddr:     envString("HTTP_ADDR", ":8080"),
		StoreBackend: backend,
		SQLitePath:   envString("SQLITE_PATH", "data/airquality.db"),
		DSN:          envString("DB_DSN", ""),
		PostgresDSN:  envString("POSTGRES_DSN", ""),
		MQTTBroker:   envString("MQTT_BROKER", "localhost"),
		MQTTClientID: envString("MQTT_CLIENT_ID", "airquality-server"),
		MQTTTopic:    envString("MQTT_TOPIC", "sensor_readings"),
	}

	if backend == BackendPostgres && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND=postgres")
	}

	if cfg.MaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 1); err != nil {
		return Config{}, err
	}
	if cfg.MaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 1); err != nil {
		return Config{}, err
	}
	if cfg.ConnMaxLifetime, err = envDuration("DB_CONN_MAX_LIFETIME", 0); err != nil {
		return Config{}, err
	}
	if cfg.LogSQL, err = envBool("DB_LOG_SQL", false); err != nil {
		return Config{}, err
	}

	if cfg.MQTTEnabled, err = envBool("MQTT_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.MQTTPort, err = envInt("MQTT_PORT", 1883); err != nil {
		return Config{}, err
	}
	if cfg.MQTTPort <= 0 || cfg.MQTTPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (must be 1-65535)", cfg.MQTTPort)
	}

	tzName := envString("DISPLAY_TIMEZONE", "Europe/Istanbul")
	if cfg.DisplayTimezone, err = time.LoadLocation(tzName); err != nil {
		return Config{}, fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", tzName, err)
	}

	if cfg.HistoryLimit, err = envInt("HISTORY_LIMIT", 50); err != nil {
		return Config{}, err
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > 1000 {
		return Config{}, fmt.Errorf("invalid HISTORY_LIMIT %d (must be 1-1000)", cfg.HistoryLimit)
	}
	if cfg.DeleteBatchSize, err = envInt("DELETE_BATCH_SIZE", 500); err != nil {
		return Config{}, err
	}
	if cfg.DeleteBatchSize <= 0 {
		return Config{}, fmt.Errorf("invalid DELETE_BATCH_SIZE %d (must be > 0)", cfg.DeleteBatchSize)
	}
	if cfg.DeleteConfirmTTL, err = envDuration("DELETE_CONFIRM_TTL", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.DeleteConfirmTTL <= 0 {
		return Config{}, fmt.Errorf("invalid DELETE_CONFIRM_TTL %s (must be > 0)", cfg.DeleteConfirmTTL)
	}

	if cfg.GaugeAnimationDuration, err = envDuration("GAUGE_ANIMATION_DURATION", 1500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.GaugeAnimationDuration < 0 {
		return Config{}, fmt.Errorf("invalid GAUGE_ANIMATION_DURATION %s (must be >= 0)", cfg.GaugeAnimationDuration)
	}
	cfg.GaugeAnimationStart = strings.ToLower(envString("GAUGE_ANIMATION_START", AnimationStartZero))
	switch cfg.GaugeAnimationStart {
	case AnimationStartZero, AnimationStartCurrent:
	default:
		return Config{}, fmt.Errorf("invalid GAUGE_ANIMATION_START %q (allowed: zero, current)", cfg.GaugeAnimationStart)
	}

	rps := envString("RATE_LIMIT_RPS", "10")
	if cfg.RateLimitRPS, err = strconv.ParseFloat(rps, 64); err != nil {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", rps, err)
	}
	if cfg.RateLimitBurst, err = envInt("RATE_LIMIT_BURST", 20); err != nil {
		return Config{}, err
	}

	if cfg.SimulateInterval, err = envDuration("SIMULATE_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SimulateInterval <= 0 {
		return Config{}, fmt.Errorf("invalid SIMULATE_INTERVAL %s (must be > 0)", cfg.SimulateInterval)
	}

	return cfg, nil
}

// IsDev reports whether the process runs with development defaults.
func (c Config) IsDev() bool { return c.AppEnv == "dev" }

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
