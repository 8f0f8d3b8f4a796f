// Package config provides environment configuration for the session daemon.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	SSEHeartbeat       time.Duration
	CORSOrigins        []string

	// Remote chat API
	APIBaseURL       string
	APIToken         string
	APITimeout       time.Duration
	StreamBaseURL    string
	HandshakeTimeout time.Duration

	// Session identity and behaviour
	SelfID        int64
	SelfUsername  string
	PollInterval  time.Duration
	DeleteGrace   time.Duration
	VerifyDeletes bool
	ReloadEvery   time.Duration

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		SSEHeartbeat:       getDurationEnv("SSE_HEARTBEAT", 30*time.Second),
		CORSOrigins:        getListEnv("CORS_ORIGINS", []string{"https://*", "http://*"}),

		// Remote chat API
		APIBaseURL:       getEnv("API_BASE_URL", ""),
		APIToken:         getEnv("API_TOKEN", ""),
		APITimeout:       getDurationEnv("API_TIMEOUT", 15*time.Second),
		StreamBaseURL:    getEnv("STREAM_BASE_URL", ""),
		HandshakeTimeout: getDurationEnv("STREAM_HANDSHAKE_TIMEOUT", 10*time.Second),

		// Session
		SelfID:        getInt64Env("SELF_ID", 0),
		SelfUsername:  getEnv("SELF_USERNAME", ""),
		PollInterval:  getDurationEnv("POLL_INTERVAL", 5*time.Second),
		DeleteGrace:   getDurationEnv("DELETE_GRACE", 30*time.Second),
		VerifyDeletes: getBoolEnv("VERIFY_DELETES", false),
		ReloadEvery:   getDurationEnv("RELOAD_EVERY", 2*time.Second),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports settings the daemon cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL is required"))
	}
	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}
	if c.SelfID <= 0 {
		errs = append(errs, errors.New("SELF_ID must be a positive profile id"))
	}
	return errors.Join(errs...)
}

// StreamURL returns the websocket base, derived from the API base when unset.
func (c *Config) StreamURL() string {
	if c.StreamBaseURL != "" {
		return c.StreamBaseURL
	}
	if rest, ok := strings.CutPrefix(c.APIBaseURL, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(c.APIBaseURL, "http://"); ok {
		return "ws://" + rest
	}
	return c.APIBaseURL
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
