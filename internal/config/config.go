package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Session     SessionConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxConnections  int
	MaxIdleTime     time.Duration
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	// Addr left empty selects the in-memory stores with an explicit sweep.
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	AccessSecret string
	AccessTTL    time.Duration
	Issuer       string
}

// SessionConfig carries the coordination timings. The heartbeat interval must
// stay strictly below the presence TTL so one missed heartbeat survives.
type SessionConfig struct {
	PresenceTTL       time.Duration
	HeartbeatInterval time.Duration
	ReconcileInterval time.Duration
	VoteWindow        time.Duration
	VoteTicks         int
	KickCooldown      time.Duration
	HistoryPageSize   int
	HistoryTimeout    time.Duration
	MaxRoomMembers    int
	MessageRateLimit  int
	MessageRateWindow time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			// Empty DSN runs without history, directory and audit persistence.
			DSN:             getEnv("DATABASE_DSN", ""),
			MaxConnections:  getEnvAsInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdleTime:     getEnvAsDuration("DATABASE_MAX_IDLE_TIME", 5*time.Minute),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "your-access-secret-key-change-in-production"),
			AccessTTL:    getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			Issuer:       getEnv("JWT_ISSUER", "chat-session"),
		},
		Session: SessionConfig{
			PresenceTTL:       getEnvAsDuration("PRESENCE_TTL", 35*time.Second),
			HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", 28*time.Second),
			ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 10*time.Second),
			VoteWindow:        getEnvAsDuration("VOTE_WINDOW", 60*time.Second),
			VoteTicks:         getEnvAsInt("VOTE_TICKS", 3),
			KickCooldown:      getEnvAsDuration("KICK_COOLDOWN", 120*time.Second),
			HistoryPageSize:   getEnvAsInt("HISTORY_PAGE_SIZE", 50),
			HistoryTimeout:    getEnvAsDuration("HISTORY_TIMEOUT", 2*time.Second),
			MaxRoomMembers:    getEnvAsInt("MAX_ROOM_MEMBERS", 0),
			MessageRateLimit:  getEnvAsInt("MESSAGE_RATE_LIMIT", 30),
			MessageRateWindow: getEnvAsDuration("MESSAGE_RATE_WINDOW", 10*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.AccessSecret == "" {
		return fmt.Errorf("JWT secret must be set")
	}
	if c.Session.HeartbeatInterval >= c.Session.PresenceTTL {
		return fmt.Errorf("heartbeat interval (%s) must be shorter than presence TTL (%s)",
			c.Session.HeartbeatInterval, c.Session.PresenceTTL)
	}
	if c.Session.VoteTicks < 1 {
		return fmt.Errorf("vote ticks must be at least 1")
	}
	return nil
}

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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
