// Package config loads application settings from the environment.
//
// A .env file in the working directory is read first when present; variables
// already set in the process environment always win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the server.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	// DatabaseURL takes precedence over the discrete DB_* settings.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DB          DB     `envconfig:"DB"`

	JWTSecret    string        `envconfig:"JWT_SECRET" required:"true"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	CookieSecure bool          `envconfig:"COOKIE_SECURE" default:"false"`

	// AdminEmail and AdminPassword seed the first admin account at startup.
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AMQPURL        string `envconfig:"AMQP_URL"`
	AMQPExchange   string `envconfig:"AMQP_EXCHANGE" default:"enjoycity.bookings"`
	AMQPQueue      string `envconfig:"AMQP_QUEUE" default:"enjoycity.booking-mails"`
	NotifyConsumer bool   `envconfig:"NOTIFY_CONSUMER" default:"false"`

	UploadDir    string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	TicketSecret string `envconfig:"TICKET_SECRET" required:"true"`

	CORSOrigins        []string `envconfig:"CORS_ORIGINS" default:"*"`
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`

	// Timezone is used to read and display event times.
	Timezone string `envconfig:"TIMEZONE" default:"UTC"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// DB mirrors the libpq-style discrete connection settings (DB_HOST, DB_PORT, ...).
type DB struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER" default:"postgres"`
	Password string `envconfig:"PASSWORD" default:"postgres"`
	Name     string `envconfig:"NAME" default:"enjoycity"`
	SSLMode  string `envconfig:"SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"MAX_CONNS" default:"20"`
}

// DSN returns DatabaseURL when set, otherwise a key/value connection string
// built from the DB_* settings.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv processes the current environment without touching .env.
func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if len(c.TicketSecret) < 16 {
		return errors.New("TICKET_SECRET must be at least 16 characters")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}
