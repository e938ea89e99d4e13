package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "councild.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "COUNCILD_PORT")
	setString(&cfg.Server.CORSOrigin, "COUNCILD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "COUNCILD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "COUNCILD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "COUNCILD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "COUNCILD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "COUNCILD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Gateway.URL, "GATEWAY_URL")
	setString(&cfg.Gateway.MasterKey, "GATEWAY_MASTER_KEY")
	setDuration(&cfg.Gateway.Timeout, "COUNCILD_GATEWAY_TIMEOUT")
	setString(&cfg.Logging.Level, "COUNCILD_LOG_LEVEL")
	setString(&cfg.Logging.Format, "COUNCILD_LOG_FORMAT")
	setString(&cfg.Logging.Service, "COUNCILD_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "COUNCILD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "COUNCILD_BREAKER_TIMEOUT")

	// Telemetry
	setBool(&cfg.Telemetry.Enabled, "COUNCILD_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "COUNCILD_OTEL_INSECURE")
	setFloat64(&cfg.Telemetry.SampleRate, "COUNCILD_OTEL_SAMPLE_RATE")
	setDuration(&cfg.Telemetry.ExportInterval, "COUNCILD_OTEL_EXPORT_INTERVAL")

	// Council
	setInt(&cfg.Council.MaxDeliberationRounds, "COUNCILD_MAX_DELIBERATION_ROUNDS")
	setFloat64(&cfg.Council.PositionChangeThreshold, "COUNCILD_POSITION_CHANGE_THRESHOLD")
	setFloat64(&cfg.Council.AutoApproveThreshold, "COUNCILD_AUTO_APPROVE_THRESHOLD")
	setFloat64(&cfg.Council.AutoRejectThreshold, "COUNCILD_AUTO_REJECT_THRESHOLD")
	setFloat64(&cfg.Council.BudgetReviewThreshold, "COUNCILD_BUDGET_REVIEW_THRESHOLD")
	setFloat64(&cfg.Council.MinConfidence, "COUNCILD_MIN_CONFIDENCE")
	setString(&cfg.Council.SynthesisModel, "COUNCILD_SYNTHESIS_MODEL")
	setString(&cfg.Council.ParserModel, "COUNCILD_PARSER_MODEL")

	// Learning
	setInt(&cfg.Learning.MinEvidence, "COUNCILD_LEARNING_MIN_EVIDENCE")
	setInt(&cfg.Learning.MaxAgeDays, "COUNCILD_LEARNING_MAX_AGE_DAYS")
	setInt(&cfg.Learning.BootstrapTarget, "COUNCILD_LEARNING_BOOTSTRAP_TARGET")
	setInt(&cfg.Learning.BootstrapHistoryCap, "COUNCILD_LEARNING_BOOTSTRAP_HISTORY_CAP")
	setInt(&cfg.Learning.MaxObservationsInPrompt, "COUNCILD_LEARNING_MAX_OBSERVATIONS")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Council.MaxDeliberationRounds < 0 {
		return errors.New("council.max_deliberation_rounds must be >= 0")
	}
	if cfg.Council.AutoApproveThreshold <= cfg.Council.AutoRejectThreshold {
		return errors.New("council.auto_approve_threshold must exceed auto_reject_threshold")
	}
	if cfg.Council.MinConfidence < 0 || cfg.Council.MinConfidence > 1 {
		return errors.New("council.min_confidence must be in [0, 1]")
	}
	if len(cfg.Agents) == 0 {
		return errors.New("agents roster must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.ID == "" || a.Model == "" {
			return fmt.Errorf("agent %q: id and model are required", a.Name)
		}
		if seen[a.ID] {
			return fmt.Errorf("agent id %q duplicated in roster", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
