package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds liveclass-service configuration.
type Config struct {
	AppEnv   string // APP_ENV
	AppHost  string // APP_HOST
	HTTPPort string // APP_PORT or HTTP_PORT
	LogLevel string // LOG_LEVEL

	// PostgreSQL
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// WebSocket
	WSReadBufferSize  int
	WSWriteBufferSize int
	WSMaxMessageSize  int64

	// Admission timing. Every remote-write-dependent transition is
	// covered by a realtime subscription plus one of these polls.
	MarkerTTL          time.Duration // host_active marker older than this is stale
	HostPollInterval   time.Duration // student waiting for host to start
	StatusPollInterval time.Duration // student waiting on request review
	RoomPollInterval   time.Duration // host refreshing the waiting room
	ReadRetries        int           // registry read attempts before "not active"
	ReadRetryBackoff   time.Duration

	// Whiteboard command batch flush.
	WhiteboardFlush time.Duration

	// Optional RTC token endpoint. Empty disables token minting and
	// clients join in degraded mode.
	RTCTokenURL string

	// WebSocket URL returned in StartSession (e.g. wss://live.example.com)
	WSBaseURL string
}

// Load loads config from environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	readBuf, _ := strconv.Atoi(getEnv("WS_READ_BUFFER_SIZE", "4096"))
	writeBuf, _ := strconv.Atoi(getEnv("WS_WRITE_BUFFER_SIZE", "4096"))
	maxMsg, _ := strconv.ParseInt(getEnv("WS_MAX_MESSAGE_SIZE", "262144"), 10, 64)
	retries, _ := strconv.Atoi(getEnv("REGISTRY_READ_RETRIES", "3"))

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		AppHost:            getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:           firstEnv("APP_PORT", "HTTP_PORT", "8090"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		WSReadBufferSize:   readBuf,
		WSWriteBufferSize:  writeBuf,
		WSMaxMessageSize:   maxMsg,
		MarkerTTL:          getDuration("SESSION_MARKER_TTL", 3*time.Hour),
		HostPollInterval:   getDuration("HOST_POLL_INTERVAL", 2*time.Second),
		StatusPollInterval: getDuration("STATUS_POLL_INTERVAL", 3*time.Second),
		RoomPollInterval:   getDuration("ROOM_POLL_INTERVAL", 5*time.Second),
		ReadRetries:        retries,
		ReadRetryBackoff:   getDuration("REGISTRY_READ_BACKOFF", 500*time.Millisecond),
		WhiteboardFlush:    getDuration("WHITEBOARD_FLUSH_INTERVAL", 100*time.Millisecond),
		RTCTokenURL:        getEnv("RTC_TOKEN_URL", ""),
		WSBaseURL:          getEnv("WS_BASE_URL", ""),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "liveclass_service")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

// Validate checks required fields and production safety.
func (c *Config) Validate() error {
	if c.DB.Host == "" {
		return errors.New("config: DB_HOST is required")
	}
	if c.DB.User == "" {
		return errors.New("config: DB_USER is required")
	}
	if c.DB.Database == "" {
		return errors.New("config: DB_DATABASE is required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.MarkerTTL <= 0 {
		return errors.New("config: SESSION_MARKER_TTL must be positive")
	}
	if c.ReadRetries < 1 {
		return errors.New("config: REGISTRY_READ_RETRIES must be at least 1")
	}
	return nil
}

// DSN returns PostgreSQL connection string for GORM.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// DatabaseURL returns postgres URL for golang-migrate.
func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

// Addr returns listen address for HTTP server.
func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	keys := keysAndDef[:len(keysAndDef)-1]
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
