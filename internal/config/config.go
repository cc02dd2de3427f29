package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Midnight  MidnightConfig
	Cardano   CardanoConfig
	QR        QRConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// CORSAllowedOrigins empty disables CORS handling.
	CORSAllowedOrigins []string
}

type DatabaseConfig struct {
	Driver        string // sqlite or postgres
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
}

type RedisConfig struct {
	Addr    string
	Enabled bool
	LockTTL time.Duration
}

type KafkaConfig struct {
	Brokers            []string
	Topic              string
	ConfirmationsTopic string
	GroupID            string
	Enabled            bool
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	OIDCIssuer string
}

type MidnightConfig struct {
	MockMode         bool
	APIURL           string
	APIKey           string
	RequestTimeout   time.Duration
	ApprovalLifetime time.Duration
}

type CardanoConfig struct {
	MockMode            bool
	Network             string
	BlockfrostURL       string
	BlockfrostProjectID string
	OrganizerSeed       string
	PolicyScript        string
	RequestTimeout      time.Duration
}

type QRConfig struct {
	SecretKey string
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

type LogConfig struct {
	Dir   string
	Level string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":3001"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 45*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),

			CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Driver:        getEnv("DB_DRIVER", "sqlite"),
			DSN:           getEnv("DB_DSN", "file:tickets.db?cache=shared&_pragma=foreign_keys(1)"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", ""),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled: getEnvBool("REDIS_ENABLED", false),
			LockTTL: getEnvDuration("TICKET_LOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:            getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:              getEnv("KAFKA_TOPIC_TICKETS", "ticketing.ticket.lifecycle"),
			ConfirmationsTopic: getEnv("KAFKA_TOPIC_CONFIRMATIONS", "ticketing.ledger.confirmations"),
			GroupID:            getEnv("KAFKA_GROUP_ID", "ticket-lifecycle"),
			Enabled:            getEnvBool("KAFKA_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", "dev-secret-key-change-in-production"),
			TokenTTL:   getEnvDuration("JWT_TTL", 24*time.Hour),
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		Midnight: MidnightConfig{
			MockMode:         getEnvBool("MIDNIGHT_MOCK", true),
			APIURL:           getEnv("MIDNIGHT_API_URL", "http://localhost:8080"),
			APIKey:           getEnv("MIDNIGHT_API_KEY", "mock-key"),
			RequestTimeout:   getEnvDuration("MIDNIGHT_TIMEOUT", 30*time.Second),
			ApprovalLifetime: getEnvDuration("RESALE_APPROVAL_TTL", 24*time.Hour),
		},
		Cardano: CardanoConfig{
			MockMode:            getEnvBool("CARDANO_MOCK", true),
			Network:             getEnv("CARDANO_NETWORK", "testnet"),
			BlockfrostURL:       getEnv("BLOCKFROST_URL", "https://cardano-preprod.blockfrost.io/api/v0"),
			BlockfrostProjectID: getEnv("BLOCKFROST_PROJECT_ID", ""),
			OrganizerSeed:       getEnv("ORGANIZER_SIGNING_SEED", ""),
			PolicyScript:        getEnv("CARDANO_POLICY_SCRIPT", "ticket-minting-policy-v1"),
			RequestTimeout:      getEnvDuration("CARDANO_TIMEOUT", 30*time.Second),
		},
		QR: QRConfig{
			SecretKey: getEnv("QR_SECRET_KEY", "dev-qr-secret"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}
}

// PersistentRecords reports whether ticket records survive a restart.
func (c DatabaseConfig) PersistentRecords() bool {
	if c.Driver != "sqlite" {
		return true
	}
	return !strings.Contains(c.DSN, ":memory:") && !strings.Contains(c.DSN, "mode=memory")
}

// Warnings lists setting combinations that start but misbehave. Mock private
// state without Redis lives in process memory, so after a restart persisted
// active tickets are missing from it.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Midnight.MockMode && !c.Redis.Enabled && c.Database.PersistentRecords() {
		warnings = append(warnings, "private state is in memory while ticket records persist: "+
			"tickets minted before a restart cannot be cancelled, resold or transferred. "+
			"Set REDIS_ENABLED=true or use an in-memory DB_DSN")
	}
	if !c.Cardano.MockMode && c.Cardano.OrganizerSeed == "" {
		warnings = append(warnings, "CARDANO_MOCK=false with an ephemeral organizer key: fund its address before minting")
	}
	return warnings
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
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
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
