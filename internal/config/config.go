package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures all runtime settings required by the usage service.
// Values can be provided by environment variables, a properties file,
// or fall back to sensible defaults so the service can boot with
// minimal setup.
type Config struct {
	// ListenAddress defines the TCP address used by the HTTP server.
	ListenAddress string
	// LogFilePath is the absolute or relative path to the log file.
	LogFilePath string
	// LogLevel selects the minimum slog level (DEBUG, INFO, WARN, ERROR).
	LogLevel string
	// DBPath locates the SQLite database file.
	DBPath string
	// TimezoneOffsetMinutes is the fixed UTC offset, in minutes, that
	// defines day and week boundaries for every rollup.
	TimezoneOffsetMinutes int
	// NominalInterval is the expected cadence between device samples,
	// used when a counter delta cannot be trusted.
	NominalInterval time.Duration
	// StaleThreshold is how old the latest sample may be before the
	// live-usage view reports zeros.
	StaleThreshold time.Duration
	// RecentWeeks is how many weekly rows the recent-weeks query returns.
	RecentWeeks int
	// RefreshPerMinute caps sample-triggered rollup refreshes.
	RefreshPerMinute int
	// HTTPReadTimeout bounds the time to read incoming requests.
	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout bounds the time to write responses.
	HTTPWriteTimeout time.Duration
	// ShutdownTimeout limits graceful shutdown attempts.
	ShutdownTimeout time.Duration
	// PropertiesPath records the path used to load property values.
	PropertiesPath string
	// KafkaBrokers lists bootstrap brokers for the sample topic. Empty
	// disables the Kafka source.
	KafkaBrokers []string
	// KafkaTopic carries raw device samples.
	KafkaTopic string
	// KafkaGroupID is the consumer group identifier used for checkpointing.
	KafkaGroupID string
	// MQTTBroker is the broker URL for the MQTT sample source. Empty
	// disables the MQTT source.
	MQTTBroker string
	// MQTTTopic is the subscription filter for device samples.
	MQTTTopic string
}

const (
	defaultListenAddress = ":8090"
	defaultLogFile       = "logs/usage.log"
	defaultLogLevel      = "INFO"
	defaultDBPath        = "data/usage.db"
	defaultOffsetMinutes = 480
	defaultNominal       = 5 * time.Minute
	defaultStale         = 8 * time.Minute
	defaultRecentWeeks   = 4
	defaultRefreshPerMin = 12
	defaultReadTimeout   = 5 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultShutdown      = 5 * time.Second
	defaultPropsPath     = "usage.properties"
	defaultKafkaTopic    = "usage.raw.samples"
	defaultKafkaGroup    = "usage-aggregator"
	defaultMQTTTopic     = "devices/+/usage"
)

// Load resolves configuration by layering defaults, an optional
// properties file, and finally environment variables. The properties
// file location can be overridden with USAGE_PROPERTIES_PATH.
func Load() (Config, error) {
	cfg := Config{
		ListenAddress:         defaultListenAddress,
		LogFilePath:           filepath.Clean(defaultLogFile),
		LogLevel:              defaultLogLevel,
		DBPath:                filepath.Clean(defaultDBPath),
		TimezoneOffsetMinutes: defaultOffsetMinutes,
		NominalInterval:       defaultNominal,
		StaleThreshold:        defaultStale,
		RecentWeeks:           defaultRecentWeeks,
		RefreshPerMinute:      defaultRefreshPerMin,
		HTTPReadTimeout:       defaultReadTimeout,
		HTTPWriteTimeout:      defaultWriteTimeout,
		ShutdownTimeout:       defaultShutdown,
		KafkaTopic:            defaultKafkaTopic,
		KafkaGroupID:          defaultKafkaGroup,
		MQTTTopic:             defaultMQTTTopic,
	}

	propsPath := strings.TrimSpace(os.Getenv("USAGE_PROPERTIES_PATH"))
	if propsPath == "" {
		propsPath = defaultPropsPath
	}
	cfg.PropertiesPath = propsPath

	if err := applyProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyProperties(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		// Close errors are ignored because configuration loading has
		// already completed and there is no logger available at this
		// stage of initialization.
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := setProperty(cfg, key, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	return nil
}

func setProperty(cfg *Config, key, value string) error {
	switch key {
	case "listen_address":
		if value == "" {
			return errors.New("listen_address cannot be empty")
		}
		cfg.ListenAddress = value
	case "log_path":
		if value == "" {
			return errors.New("log_path cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(value)
	case "log_level":
		cfg.LogLevel = value
	case "db_path":
		if value == "" {
			return errors.New("db_path cannot be empty")
		}
		cfg.DBPath = filepath.Clean(value)
	case "timezone_offset_minutes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid timezone_offset_minutes: %w", err)
		}
		cfg.TimezoneOffsetMinutes = n
	case "nominal_interval_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.NominalInterval = d
	case "stale_threshold_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.StaleThreshold = d
	case "recent_weeks":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid recent_weeks: %w", err)
		}
		if n <= 0 {
			return errors.New("recent_weeks must be positive")
		}
		cfg.RecentWeeks = n
	case "refresh_per_minute":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid refresh_per_minute: %w", err)
		}
		if n <= 0 {
			return errors.New("refresh_per_minute must be positive")
		}
		cfg.RefreshPerMinute = n
	case "http_read_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.HTTPReadTimeout = d
	case "http_write_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.HTTPWriteTimeout = d
	case "shutdown_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.ShutdownTimeout = d
	case "kafka_brokers":
		cfg.KafkaBrokers = splitAndTrim(value)
	case "kafka_topic":
		if value == "" {
			return errors.New("kafka_topic cannot be empty")
		}
		cfg.KafkaTopic = value
	case "kafka_group_id":
		if value == "" {
			return errors.New("kafka_group_id cannot be empty")
		}
		cfg.KafkaGroupID = value
	case "mqtt_broker":
		cfg.MQTTBroker = value
	case "mqtt_topic":
		if value == "" {
			return errors.New("mqtt_topic cannot be empty")
		}
		cfg.MQTTTopic = value
	default:
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnvTrimmed("USAGE_LISTEN_ADDRESS"); ok {
		if v == "" {
			return errors.New("USAGE_LISTEN_ADDRESS cannot be empty")
		}
		cfg.ListenAddress = v
	}
	if v, ok := lookupEnvTrimmed("USAGE_LOG_PATH"); ok {
		if v == "" {
			return errors.New("USAGE_LOG_PATH cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(v)
	}
	if v, ok := lookupEnvTrimmed("USAGE_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookupEnvTrimmed("USAGE_DB_PATH"); ok {
		if v == "" {
			return errors.New("USAGE_DB_PATH cannot be empty")
		}
		cfg.DBPath = filepath.Clean(v)
	}
	if v, ok := lookupEnvTrimmed("USAGE_TZ_OFFSET_MINUTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("USAGE_TZ_OFFSET_MINUTES: %w", err)
		}
		cfg.TimezoneOffsetMinutes = n
	}
	if v, ok := lookupEnvTrimmed("USAGE_NOMINAL_INTERVAL_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("USAGE_NOMINAL_INTERVAL_MS: %w", err)
		}
		cfg.NominalInterval = d
	}
	if v, ok := lookupEnvTrimmed("USAGE_STALE_THRESHOLD_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("USAGE_STALE_THRESHOLD_MS: %w", err)
		}
		cfg.StaleThreshold = d
	}
	if v, ok := lookupEnvTrimmed("USAGE_RECENT_WEEKS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("USAGE_RECENT_WEEKS: %w", err)
		}
		if n <= 0 {
			return errors.New("USAGE_RECENT_WEEKS must be positive")
		}
		cfg.RecentWeeks = n
	}
	if v, ok := lookupEnvTrimmed("USAGE_REFRESH_PER_MINUTE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("USAGE_REFRESH_PER_MINUTE: %w", err)
		}
		if n <= 0 {
			return errors.New("USAGE_REFRESH_PER_MINUTE must be positive")
		}
		cfg.RefreshPerMinute = n
	}
	if v, ok := lookupEnvTrimmed("USAGE_HTTP_READ_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("USAGE_HTTP_READ_TIMEOUT_MS: %w", err)
		}
		cfg.HTTPReadTimeout = d
	}
	if v, ok := lookupEnvTrimmed("USAGE_HTTP_WRITE_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("USAGE_HTTP_WRITE_TIMEOUT_MS: %w", err)
		}
		cfg.HTTPWriteTimeout = d
	}
	if v, ok := lookupEnvTrimmed("USAGE_SHUTDOWN_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("USAGE_SHUTDOWN_TIMEOUT_MS: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if v, ok := lookupEnvTrimmed("USAGE_KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitAndTrim(v)
	} else if v, ok := lookupEnvTrimmed("KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitAndTrim(v)
	}
	if v, ok := lookupEnvTrimmed("USAGE_KAFKA_TOPIC"); ok {
		if v == "" {
			return errors.New("USAGE_KAFKA_TOPIC cannot be empty")
		}
		cfg.KafkaTopic = v
	}
	if v, ok := lookupEnvTrimmed("USAGE_KAFKA_GROUP"); ok {
		if v == "" {
			return errors.New("USAGE_KAFKA_GROUP cannot be empty")
		}
		cfg.KafkaGroupID = v
	}
	if v, ok := lookupEnvTrimmed("USAGE_MQTT_BROKER"); ok {
		cfg.MQTTBroker = v
	}
	if v, ok := lookupEnvTrimmed("USAGE_MQTT_TOPIC"); ok {
		if v == "" {
			return errors.New("USAGE_MQTT_TOPIC cannot be empty")
		}
		cfg.MQTTTopic = v
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitAndTrim(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositiveMillis(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if ms <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
