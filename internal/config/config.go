// Package config loads application configuration from environment variables.
// main calls godotenv.Load first so a local .env file can supply them.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env         string // APP_ENV (dev, test, prod)
	Port        string // APP_PORT
	StoreDriver string // STORE_DRIVER: mysql or memory
	JWTSecret   string // JWT_SECRET, used only to verify access tokens
	RabbitMQURL string // RABBITMQ_URL; empty disables event publishing

	DB      DBConfig
	Booking BookingConfig
	Payment PaymentConfig
	SMTP    SMTPConfig
}

// DBConfig describes the MySQL connection.
type DBConfig struct {
	User        string
	Pass        string
	Host        string
	Port        string
	Name        string
	AutoMigrate bool          // DB_AUTO_MIGRATE creates missing tables on start
	LockWait    time.Duration // DB_LOCK_WAIT bounds row-lock waits
}

// BookingConfig holds the engine's timing and invoicing settings.
type BookingConfig struct {
	HoldTTL       time.Duration // HOLD_TTL: lifetime of a seat hold
	CartTTL       time.Duration // CART_TTL: rolling cart expiry
	PaymentWindow time.Duration // PAYMENT_WINDOW: how long a PENDING reservation keeps its seats
	CleanupBuffer time.Duration // SHOWTIME_CLEANUP_BUFFER: room turnaround after each showing
	SweepInterval time.Duration // SWEEP_INTERVAL: background expiry sweep period
	Currency      string        // CURRENCY
	SupplierName  string        // SUPPLIER_NAME printed on invoices
	SupplierEmail string        // SUPPLIER_EMAIL printed on invoices
}

// PaymentConfig points at the external payment collaborator.
type PaymentConfig struct {
	URL           string        // PAYMENT_URL; empty selects the offline processor
	APIKey        string        // PAYMENT_API_KEY
	WebhookSecret string        // PAYMENT_WEBHOOK_SECRET guards the callback route
	Timeout       time.Duration // PAYMENT_TIMEOUT
}

// SMTPConfig configures confirmation e-mails sent by the notifier worker.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether enough settings are present to send mail.
func (s SMTPConfig) Enabled() bool { return s.Host != "" && s.From != "" }

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database variables
// are only required with the mysql driver.
func Load() Config {
	cfg := Config{
		Env:         must("APP_ENV"),
		Port:        must("APP_PORT"),
		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		JWTSecret:   must("JWT_SECRET"),
		RabbitMQURL: firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
		Booking:     LoadBooking(),
		Payment:     LoadPayment(),
		SMTP:        LoadSMTP(),
	}
	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DB = DBConfig{
			User:        must("DB_USER"),
			Pass:        os.Getenv("DB_PASS"),
			Host:        must("DB_HOST"),
			Port:        must("DB_PORT"),
			Name:        must("DB_NAME"),
			AutoMigrate: envBool("DB_AUTO_MIGRATE", false),
			LockWait:    envDur("DB_LOCK_WAIT", 5*time.Second),
		}
	case DriverMemory:
	default:
		log.Fatalf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}
	if err := cfg.Booking.Validate(); err != nil {
		log.Fatalf("invalid booking config: %v", err)
	}
	if err := cfg.Payment.Validate(); err != nil {
		log.Fatalf("invalid payment config: %v", err)
	}
	return cfg
}

// NotifierConfig is the configuration of the notification worker.
type NotifierConfig struct {
	Env         string // APP_ENV
	RabbitMQURL string // RABBITMQ_URL (required)
	LogDir      string // BOOKING_LOG_DIR: where booking.log is appended
	SMTP        SMTPConfig
}

// LoadNotifier reads the worker's settings.  The broker URL is required.
func LoadNotifier() NotifierConfig {
	url := firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL"))
	if url == "" {
		log.Fatalf("missing required env var: RABBITMQ_URL")
	}
	return NotifierConfig{
		Env:         envStr("APP_ENV", "dev"),
		RabbitMQURL: url,
		LogDir:      envStr("BOOKING_LOG_DIR", "logs"),
		SMTP:        LoadSMTP(),
	}
}

// LoadBooking reads the booking settings, applying defaults for anything
// unset.  The cart TTL defaults to the hold TTL.
func LoadBooking() BookingConfig {
	hold := envDur("HOLD_TTL", 10*time.Minute)
	return BookingConfig{
		HoldTTL:       hold,
		CartTTL:       envDur("CART_TTL", hold),
		PaymentWindow: envDur("PAYMENT_WINDOW", 15*time.Minute),
		CleanupBuffer: envDur("SHOWTIME_CLEANUP_BUFFER", 30*time.Minute),
		SweepInterval: envDur("SWEEP_INTERVAL", 30*time.Second),
		Currency:      strings.ToLower(envStr("CURRENCY", "cad")),
		SupplierName:  envStr("SUPPLIER_NAME", "Cinema Box Office"),
		SupplierEmail: envStr("SUPPLIER_EMAIL", "billing@cinema.local"),
	}
}

// Validate rejects negative durations.  A zero hold TTL is allowed: such
// holds are already expired when placed.
func (b BookingConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"HOLD_TTL": b.HoldTTL, "CART_TTL": b.CartTTL, "PAYMENT_WINDOW": b.PaymentWindow,
		"SHOWTIME_CLEANUP_BUFFER": b.CleanupBuffer,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if b.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if b.Currency == "" {
		return fmt.Errorf("CURRENCY is required")
	}
	return nil
}

// Validate requires a webhook secret whenever a real processor is
// configured; its callbacks confirm reservations.
func (p PaymentConfig) Validate() error {
	if p.URL != "" && p.WebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required with PAYMENT_URL")
	}
	return nil
}

func LoadPayment() PaymentConfig {
	return PaymentConfig{
		URL:           os.Getenv("PAYMENT_URL"),
		APIKey:        os.Getenv("PAYMENT_API_KEY"),
		WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		Timeout:       envDur("PAYMENT_TIMEOUT", 10*time.Second),
	}
}

func LoadSMTP() SMTPConfig {
	return SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     envInt("SMTP_PORT", 587),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
