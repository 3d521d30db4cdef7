package config

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/sony/gobreaker"
)

// Classifier modes
const (
	ClassifierModeLocal  = "local"
	ClassifierModeRemote = "remote"
)

// Config holds all configuration for the Health Markers Service
type Config struct {
	// Server configuration
	Port string

	// Classifier configuration
	ModelPath         string
	ModelWatch        bool
	ClassifierMode    string
	ClassifierURL     string
	ClassifierTimeout time.Duration

	// Database configuration, empty disables prediction history
	DatabaseURL         string
	DropTablesOnStartup bool

	// RabbitMQ configuration, empty disables events and the measurement consumer
	RabbitMQURL           string
	PredictionsQueueName  string
	MeasurementsQueueName string

	// JWT configuration - public key from Identity Service
	AuthEnabled   bool
	PublicKeyPath string
	JWTPublicKey  *rsa.PublicKey

	// Circuit breaker configuration
	CircuitBreakerMaxRequests uint32
	CircuitBreakerInterval    time.Duration
	CircuitBreakerTimeout     time.Duration
}

// Load reads configuration from a .env file (if present) and environment variables
func Load() (*Config, error) {
	// Optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		ModelPath:             getEnv("MODEL_PATH", "./model/health_markers_model.json"),
		ClassifierMode:        strings.ToLower(getEnv("CLASSIFIER_MODE", ClassifierModeLocal)),
		ClassifierURL:         os.Getenv("CLASSIFIER_URL"),
		DatabaseURL:           os.Getenv("DB_CONNECTION_STRING"),
		RabbitMQURL:           os.Getenv("RABBITMQ_URL"),
		PredictionsQueueName:  getEnv("PREDICTIONS_QUEUE_NAME", "health_predictions"),
		MeasurementsQueueName: getEnv("MEASUREMENTS_QUEUE_NAME", "health_measurements"),
		PublicKeyPath:         getEnv("PUBLIC_KEY_PATH", "/etc/identity/public.pem"),
	}

	var err error
	if cfg.ModelWatch, err = getEnvBool("MODEL_WATCH", true); err != nil {
		return nil, err
	}
	if cfg.DropTablesOnStartup, err = getEnvBool("DROP_TABLES_ON_STARTUP", false); err != nil {
		return nil, err
	}
	if cfg.AuthEnabled, err = getEnvBool("AUTH_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.ClassifierTimeout, err = getEnvDuration("CLASSIFIER_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	// Circuit breaker settings (optional, with defaults)
	maxRequests, err := getEnvInt("CIRCUIT_BREAKER_MAX_REQUESTS", 5)
	if err != nil {
		return nil, err
	}
	if maxRequests < 1 {
		return nil, fmt.Errorf("CIRCUIT_BREAKER_MAX_REQUESTS must be at least 1, got %d", maxRequests)
	}
	cfg.CircuitBreakerMaxRequests = uint32(maxRequests)
	if cfg.CircuitBreakerInterval, err = getEnvDuration("CIRCUIT_BREAKER_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerTimeout, err = getEnvDuration("CIRCUIT_BREAKER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	switch cfg.ClassifierMode {
	case ClassifierModeLocal:
	case ClassifierModeRemote:
		if cfg.ClassifierURL == "" {
			return nil, fmt.Errorf("CLASSIFIER_URL is required when CLASSIFIER_MODE=remote")
		}
	default:
		return nil, fmt.Errorf("unknown CLASSIFIER_MODE %q (expected %q or %q)", cfg.ClassifierMode, ClassifierModeLocal, ClassifierModeRemote)
	}

	// Public key is loaded from /etc/identity/public.pem (mounted via ConfigMap)
	if cfg.AuthEnabled {
		publicKey, err := loadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key: %w", err)
		}
		cfg.JWTPublicKey = publicKey
	}

	return cfg, nil
}

// BreakerSettings builds gobreaker settings for the named dependency
func (c *Config) BreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: c.CircuitBreakerMaxRequests,
		Interval:    c.CircuitBreakerInterval,
		Timeout:     c.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return i, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

// loadPublicKey loads an RSA public key from a PEM file
func loadPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(keyData)
	if err != nil {
		return nil, err
	}
	return publicKey, nil
}
