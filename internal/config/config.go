// Package config provides configuration loading and validation for the
// ingestion service. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the ingestion service.
type Config struct {
	// Environment
	Env string `koanf:"env"`

	// Kafka
	KafkaBrokers       []string `koanf:"kafka_brokers"`
	KafkaTopic         string   `koanf:"kafka_topic"`
	KafkaGroupID       string   `koanf:"kafka_group_id"`
	KafkaFromBeginning bool     `koanf:"kafka_from_beginning"`

	// Kafka mTLS. All three paths must be set together, or none.
	KafkaCACertPath     string `koanf:"kafka_ca_cert_path"`
	KafkaAccessCertPath string `koanf:"kafka_access_cert_path"`
	KafkaAccessKeyPath  string `koanf:"kafka_access_key_path"`

	// Database
	DatabaseURL  string `koanf:"database_url"`
	DBPoolSize   int    `koanf:"db_pool_size"`
	PGCACertPath string `koanf:"pg_ca_cert_path"`

	// Metrics endpoint
	MetricsPort  int    `koanf:"metrics_port"`
	MetricsToken string `koanf:"metrics_token"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	OTLPExporter      string  `koanf:"otlp_exporter"`
	OTLPInsecure      bool    `koanf:"otlp_insecure"`
	TraceSamplingRate float64 `koanf:"trace_sampling_rate"`
}

// Configuration validation errors.
var (
	ErrMissingKafkaBrokers = errors.New("KAFKA_BROKERS is required")
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required")
	ErrPartialKafkaTLS     = errors.New("KAFKA_CA_CERT_PATH, KAFKA_ACCESS_CERT_PATH and KAFKA_ACCESS_KEY_PATH must be set together")
	ErrInvalidPoolSize     = errors.New("DB_POOL_SIZE must be a positive integer")
	ErrInvalidMetricsPort  = errors.New("METRICS_PORT must be a valid port number")
	ErrInvalidSamplingRate = errors.New("TRACE_SAMPLING_RATE must be between 0.0 and 1.0")
)

// Default values for non-secret configuration.
const (
	DefaultEnv          = "development"
	DefaultKafkaTopic   = "clickstream"
	DefaultKafkaGroupID = "sessionizer"
	DefaultDBPoolSize   = 8
	DefaultMetricsPort  = 9102
	DefaultOTLPExporter = "otlp-grpc"
	DefaultSamplingRate = 1.0
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	poolSize, poolErr := getEnvIntOrDefault("DB_POOL_SIZE", k.Int("db_pool_size"), DefaultDBPoolSize)
	if poolErr != nil {
		loadErrs = append(loadErrs, poolErr)
	}

	metricsPort, portErr := getEnvIntOrDefault("METRICS_PORT", k.Int("metrics_port"), DefaultMetricsPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	samplingRate, rateErr := getEnvFloatOrDefault("TRACE_SAMPLING_RATE", k.Float64("trace_sampling_rate"), DefaultSamplingRate)
	if rateErr != nil {
		loadErrs = append(loadErrs, rateErr)
	}

	brokersRaw := getEnvOrKoanf("KAFKA_BROKERS", k, "kafka_brokers")

	cfg := &Config{
		Env:                 getEnvOrDefaultMulti([]string{"SESSIONIZER_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		KafkaBrokers:        ParseBrokers(brokersRaw),
		KafkaTopic:          getEnvOrDefault("KAFKA_TOPIC", k.String("kafka_topic"), DefaultKafkaTopic),
		KafkaGroupID:        getEnvOrDefault("KAFKA_GROUP_ID", k.String("kafka_group_id"), DefaultKafkaGroupID),
		KafkaFromBeginning:  getEnvBoolOrKoanf("KAFKA_FROM_BEGINNING", k, "kafka_from_beginning"),
		KafkaCACertPath:     expandPath(getEnvOrKoanf("KAFKA_CA_CERT_PATH", k, "kafka_ca_cert_path")),
		KafkaAccessCertPath: expandPath(getEnvOrKoanf("KAFKA_ACCESS_CERT_PATH", k, "kafka_access_cert_path")),
		KafkaAccessKeyPath:  expandPath(getEnvOrKoanf("KAFKA_ACCESS_KEY_PATH", k, "kafka_access_key_path")),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		DBPoolSize:          poolSize,
		PGCACertPath:        expandPath(getEnvOrKoanf("PG_CA_CERT_PATH", k, "pg_ca_cert_path")),
		MetricsPort:         metricsPort,
		MetricsToken:        getEnvOrKoanf("METRICS_TOKEN", k, "metrics_token"),
		TracingEnabled:      getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		OTLPEndpoint:        getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		OTLPExporter:        getEnvOrDefault("OTLP_EXPORTER", k.String("otlp_exporter"), DefaultOTLPExporter),
		OTLPInsecure:        getEnvBoolOrKoanf("OTLP_INSECURE", k, "otlp_insecure"),
		TraceSamplingRate:   samplingRate,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// ParseBrokers splits a broker list on commas and whitespace, stripping any
// kafka://, kafka+ssl:// or ssl:// scheme prefix from each entry. Empty
// entries are dropped.
func ParseBrokers(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	var brokers []string
	for _, f := range fields {
		for _, scheme := range []string{"kafka+ssl://", "kafka://", "ssl://"} {
			if strings.HasPrefix(f, scheme) {
				f = strings.TrimPrefix(f, scheme)
				break
			}
		}
		if f != "" {
			brokers = append(brokers, f)
		}
	}
	return brokers
}

// PostgresDSN returns the database URL with the CA certificate wired in as
// sslrootcert when PG_CA_CERT_PATH is configured.
func (c *Config) PostgresDSN() string {
	if c.PGCACertPath == "" {
		return c.DatabaseURL
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return c.DatabaseURL
	}
	q := u.Query()
	q.Set("sslrootcert", c.PGCACertPath)
	u.RawQuery = q.Encode()
	return u.String()
}

// KafkaTLSEnabled reports whether the mTLS certificate paths are configured.
func (c *Config) KafkaTLSEnabled() bool {
	return c.KafkaCACertPath != "" && c.KafkaAccessCertPath != "" && c.KafkaAccessKeyPath != ""
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvBoolOrKoanf returns the environment variable as bool if set, otherwise the koanf value.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return k.Bool(koanfKey)
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present and
// consistent. Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, ErrMissingKafkaBrokers)
	}
	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}

	// The mTLS paths are optional, but partial configuration is a mistake.
	tlsSet := 0
	for _, p := range []string{c.KafkaCACertPath, c.KafkaAccessCertPath, c.KafkaAccessKeyPath} {
		if p != "" {
			tlsSet++
		}
	}
	if tlsSet > 0 && tlsSet < 3 {
		errs = append(errs, ErrPartialKafkaTLS)
	}
	if tlsSet == 3 {
		for _, p := range []string{c.KafkaCACertPath, c.KafkaAccessCertPath, c.KafkaAccessKeyPath} {
			if _, err := os.Stat(p); err != nil {
				errs = append(errs, fmt.Errorf("kafka TLS file %s: %w", p, err))
			}
		}
	}

	if c.PGCACertPath != "" {
		if _, err := os.Stat(c.PGCACertPath); err != nil {
			errs = append(errs, fmt.Errorf("postgres CA file %s: %w", c.PGCACertPath, err))
		}
	}

	if c.DBPoolSize <= 0 {
		errs = append(errs, ErrInvalidPoolSize)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		errs = append(errs, ErrInvalidMetricsPort)
	}
	if c.TraceSamplingRate < 0.0 || c.TraceSamplingRate > 1.0 {
		errs = append(errs, ErrInvalidSamplingRate)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"env":                  c.Env,
		"kafka_brokers":        strings.Join(c.KafkaBrokers, ","),
		"kafka_topic":          c.KafkaTopic,
		"kafka_group_id":       c.KafkaGroupID,
		"kafka_from_beginning": fmt.Sprintf("%t", c.KafkaFromBeginning),
		"kafka_tls":            fmt.Sprintf("%t", c.KafkaTLSEnabled()),
		"database_url":         maskDatabaseURL(c.DatabaseURL),
		"db_pool_size":         fmt.Sprintf("%d", c.DBPoolSize),
		"metrics_port":         fmt.Sprintf("%d", c.MetricsPort),
		"metrics_token":        maskSecret(c.MetricsToken),
		"tracing_enabled":      fmt.Sprintf("%t", c.TracingEnabled),
		"otlp_endpoint":        c.OTLPEndpoint,
		"otlp_exporter":        c.OTLPExporter,
		"trace_sampling_rate":  fmt.Sprintf("%g", c.TraceSamplingRate),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
