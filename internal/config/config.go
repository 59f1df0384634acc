package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Payment  PaymentConfig
	Booking  BookingConfig
	Batch    BatchConfig
	QR       QRConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	QueryTimeout time.Duration
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	BookingCreated   string
	BookingConfirmed string
	BookingCancelled string
	BookingBoarded   string
	TripMaterialized string
	PaymentSucceeded string
}

// All returns every configured topic name.
func (t TopicConfig) All() []string {
	return []string{t.BookingCreated, t.BookingConfirmed, t.BookingCancelled, t.BookingBoarded, t.TripMaterialized, t.PaymentSucceeded}
}

type AuthConfig struct {
	OIDCIssuer string
	JWTSecret  string
}

type PaymentConfig struct {
	Provider        string // "gateway" or "stripe"
	GatewayBaseURL  string
	GatewaySecret   string
	Timeout         time.Duration
	StripeSecretKey string
}

type BookingConfig struct {
	SeatHoldTTL time.Duration
	TimeZone    string
}

// Location resolves TimeZone, falling back to UTC.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type BatchConfig struct {
	Workers int
}

type QRConfig struct {
	Secret string
}

type MetricsConfig struct {
	Enabled bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8080"),
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			QueryTimeout: getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "dgc-booking-service"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				BookingCreated:   getEnv("KAFKA_TOPIC_BOOKING_CREATED", "dgc.booking.created"),
				BookingConfirmed: getEnv("KAFKA_TOPIC_BOOKING_CONFIRMED", "dgc.booking.confirmed"),
				BookingCancelled: getEnv("KAFKA_TOPIC_BOOKING_CANCELLED", "dgc.booking.cancelled"),
				BookingBoarded:   getEnv("KAFKA_TOPIC_BOOKING_BOARDED", "dgc.booking.boarded"),
				TripMaterialized: getEnv("KAFKA_TOPIC_TRIP_MATERIALIZED", "dgc.trip.materialized"),
				PaymentSucceeded: getEnv("KAFKA_TOPIC_PAYMENT_SUCCEEDED", "dgc.payment.succeeded"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			JWTSecret:  getEnv("JWT_SECRET", ""),
		},
		Payment: PaymentConfig{
			Provider:        strings.ToLower(getEnv("PAYMENT_PROVIDER", "gateway")),
			GatewayBaseURL:  getEnv("PAYMENT_GATEWAY_URL", "https://api.paystack.co"),
			GatewaySecret:   getEnv("PAYMENT_GATEWAY_SECRET", ""),
			Timeout:         getEnvDuration("PAYMENT_TIMEOUT", 10*time.Second),
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		},
		Booking: BookingConfig{
			SeatHoldTTL: time.Duration(getEnvInt("SEAT_LOCK_TTL_MINUTES", 5)) * time.Minute,
			TimeZone:    getEnv("APP_TIMEZONE", "UTC"),
		},
		Batch: BatchConfig{
			Workers: getEnvInt("MATERIALIZE_WORKERS", 1),
		},
		QR: QRConfig{
			Secret: getEnv("QR_SECRET", ""),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}
}

// Validate reports settings the API service cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.DSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	if c.Auth.OIDCIssuer == "" && c.Auth.JWTSecret == "" {
		missing = append(missing, "OIDC_ISSUER or JWT_SECRET")
	}
	if c.QR.Secret == "" {
		missing = append(missing, "QR_SECRET")
	}
	switch c.Payment.Provider {
	case "gateway":
		if c.Payment.GatewaySecret == "" {
			missing = append(missing, "PAYMENT_GATEWAY_SECRET")
		}
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			missing = append(missing, "STRIPE_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.Payment.Provider)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
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
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
