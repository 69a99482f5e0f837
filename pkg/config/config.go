package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Resilience ResilienceConfig
	Risk       RiskConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port             string
	Environment      string
	ServiceName      string
	ReadTimeout      int
	WriteTimeout     int
	RequestTimeoutMs int
	InternalAPIKey   string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds event bus configuration
type NATSConfig struct {
	URL         string
	StreamName  string
	Enabled     bool
	MaxAgeHours int
	MaxDeliver  int
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-source breaker tuning
type CircuitBreakerConfig struct {
	CircuitBreakerSettings
	Enabled          bool
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream source
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// RiskConfig holds the policy constants of the risk engine. The geovelocity
// values are product policy, not derived figures.
type RiskConfig struct {
	FetchTimeoutMs           int
	GeovelocityMaxKmh        float64
	GeovelocityMinElapsedMin int
	SimChangeWindowHours     int
	FraudHistoryWindowDays   int
	RecordTimeoutSeconds     int
	TelcoSignalTTLHours      int
}

const (
	DefaultFetchTimeoutMs           = 30
	DefaultGeovelocityMaxKmh        = 800.0
	DefaultGeovelocityMinElapsedMin = 30
	DefaultSimChangeWindowHours     = 24
	DefaultFraudHistoryWindowDays   = 90
	DefaultRecordTimeoutSeconds     = 5
	DefaultTelcoSignalTTLHours      = 72
	DefaultRequestTimeoutMs         = 200
)

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			ServiceName:      serviceName,
			ReadTimeout:      getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:     getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeoutMs: getEnvAsInt("REQUEST_TIMEOUT_MS", DefaultRequestTimeoutMs),
			InternalAPIKey:   getEnv("INTERNAL_API_KEY", ""),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "riskengine"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConns:       getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:       getEnvAsInt("DB_MIN_CONNS", 5),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "file://db/migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:         getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			StreamName:  getEnv("NATS_STREAM", "RISKENGINE"),
			Enabled:     getEnvAsBool("NATS_ENABLED", false),
			MaxAgeHours: getEnvAsInt("NATS_MAX_AGE_HOURS", 72),
			MaxDeliver:  getEnvAsInt("NATS_MAX_DELIVER", 5),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled: getEnvAsBool("CB_ENABLED", true),
				CircuitBreakerSettings: CircuitBreakerSettings{
					FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
					SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
					TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
					IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
				},
			},
		},
		Risk: RiskConfig{
			FetchTimeoutMs:           getEnvAsInt("RISK_FETCH_TIMEOUT_MS", DefaultFetchTimeoutMs),
			GeovelocityMaxKmh:        getEnvAsFloat("RISK_GEOVELOCITY_MAX_KMH", DefaultGeovelocityMaxKmh),
			GeovelocityMinElapsedMin: getEnvAsInt("RISK_GEOVELOCITY_MIN_ELAPSED_MINUTES", DefaultGeovelocityMinElapsedMin),
			SimChangeWindowHours:     getEnvAsInt("RISK_SIM_CHANGE_WINDOW_HOURS", DefaultSimChangeWindowHours),
			FraudHistoryWindowDays:   getEnvAsInt("RISK_FRAUD_HISTORY_WINDOW_DAYS", DefaultFraudHistoryWindowDays),
			RecordTimeoutSeconds:     getEnvAsInt("RISK_RECORD_TIMEOUT_SECONDS", DefaultRecordTimeoutSeconds),
			TelcoSignalTTLHours:      getEnvAsInt("RISK_TELCO_SIGNAL_TTL_HOURS", DefaultTelcoSignalTTLHours),
		},
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	cfg.Risk.applyDefaults()
	cfg.Resilience.CircuitBreaker.CircuitBreakerSettings = cfg.Resilience.CircuitBreaker.withDefaults()
	if cfg.Server.RequestTimeoutMs <= 0 {
		cfg.Server.RequestTimeoutMs = DefaultRequestTimeoutMs
	}

	return cfg, nil
}

func (r *RiskConfig) applyDefaults() {
	if r.FetchTimeoutMs <= 0 {
		r.FetchTimeoutMs = DefaultFetchTimeoutMs
	}
	if r.GeovelocityMaxKmh <= 0 {
		r.GeovelocityMaxKmh = DefaultGeovelocityMaxKmh
	}
	if r.GeovelocityMinElapsedMin <= 0 {
		r.GeovelocityMinElapsedMin = DefaultGeovelocityMinElapsedMin
	}
	if r.SimChangeWindowHours <= 0 {
		r.SimChangeWindowHours = DefaultSimChangeWindowHours
	}
	if r.FraudHistoryWindowDays <= 0 {
		r.FraudHistoryWindowDays = DefaultFraudHistoryWindowDays
	}
	if r.RecordTimeoutSeconds <= 0 {
		r.RecordTimeoutSeconds = DefaultRecordTimeoutSeconds
	}
	if r.TelcoSignalTTLHours <= 0 {
		r.TelcoSignalTTLHours = DefaultTelcoSignalTTLHours
	}
}

// FetchTimeout is the hard deadline for each upstream signal read.
func (r RiskConfig) FetchTimeout() time.Duration {
	return time.Duration(r.FetchTimeoutMs) * time.Millisecond
}

// GeovelocityMinElapsed is the window below which geovelocity is not evaluated.
func (r RiskConfig) GeovelocityMinElapsed() time.Duration {
	return time.Duration(r.GeovelocityMinElapsedMin) * time.Minute
}

// SimChangeWindow is how recent a SIM replacement must be to count.
func (r RiskConfig) SimChangeWindow() time.Duration {
	return time.Duration(r.SimChangeWindowHours) * time.Hour
}

// FraudHistoryWindow is the trailing window for counting fraud alerts.
func (r RiskConfig) FraudHistoryWindow() time.Duration {
	return time.Duration(r.FraudHistoryWindowDays) * 24 * time.Hour
}

// RecordTimeout bounds the asynchronous persistence of an assessment.
func (r RiskConfig) RecordTimeout() time.Duration {
	return time.Duration(r.RecordTimeoutSeconds) * time.Second
}

// TelcoSignalTTL is how long a cached carrier record stays valid.
func (r RiskConfig) TelcoSignalTTL() time.Duration {
	return time.Duration(r.TelcoSignalTTLHours) * time.Hour
}

// MaxAge is the stream retention for unconsumed events.
func (n NATSConfig) MaxAge() time.Duration {
	return time.Duration(n.MaxAgeHours) * time.Hour
}

// RequestTimeout is the deadline applied to inbound HTTP requests.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMs) * time.Millisecond
}

// SettingsFor layers the non-zero fields of the named source's override over
// the defaults.
func (c CircuitBreakerConfig) SettingsFor(source string) CircuitBreakerSettings {
	settings := c.CircuitBreakerSettings
	if o, ok := c.ServiceOverrides[source]; ok {
		settings = CircuitBreakerSettings{
			FailureThreshold: firstPositive(o.FailureThreshold, settings.FailureThreshold),
			SuccessThreshold: firstPositive(o.SuccessThreshold, settings.SuccessThreshold),
			TimeoutSeconds:   firstPositive(o.TimeoutSeconds, settings.TimeoutSeconds),
			IntervalSeconds:  firstPositive(o.IntervalSeconds, settings.IntervalSeconds),
		}
	}
	return settings.withDefaults()
}

func (s CircuitBreakerSettings) withDefaults() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		FailureThreshold: firstPositive(s.FailureThreshold, 5),
		SuccessThreshold: firstPositive(s.SuccessThreshold, 1),
		TimeoutSeconds:   firstPositive(s.TimeoutSeconds, 30),
		IntervalSeconds:  firstPositive(s.IntervalSeconds, 60),
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the database connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
