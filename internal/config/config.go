package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-floor/internal/events"
)

type Config struct {
	Env         string
	HTTPAddr    string
	PostgresDSN string
	RedisAddr   string

	KafkaBrokers    []string
	EventsTopic     string
	NotifierGroup   string
	NotifierWorkers int

	ServiceName string
	InstanceID  string
	JWTSecret   string
	LogLevel    string

	TaxRate            decimal.Decimal
	LowStockThreshold  int
	ReservationMinutes int

	OTELEndpoint   string
	OTELAuthHeader string

	// kumpulan error parsing, dilaporkan lewat Validate
	errs []error
}

func Load() Config {
	c := Config{
		Env:            getenv("APP_ENV", "development"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitCSV(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:    getenv("KAFKA_EVENTS_TOPIC", events.TopicFloorEvents),
		NotifierGroup:  getenv("NOTIFIER_GROUP", "realtime-notifier"),
		ServiceName:    getenv("SERVICE_NAME", "floor-api"),
		InstanceID:     getenv("INSTANCE_ID", uuid.NewString()),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		OTELEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OTELAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
	}
	c.NotifierWorkers = c.intenv("NOTIFIER_WORKERS", 4)
	c.LowStockThreshold = c.intenv("LOW_STOCK_THRESHOLD", 5)
	c.ReservationMinutes = c.intenv("DEFAULT_RESERVATION_MINUTES", 120)

	rate, err := decimal.NewFromString(getenv("TAX_RATE", "0"))
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("TAX_RATE: %w", err))
	}
	c.TaxRate = rate
	return c
}

func (c Config) Development() bool { return c.Env == "development" }

// Validate reports every bad value at once.
func (c Config) Validate() error {
	errs := append([]error(nil), c.errs...)
	if c.JWTSecret == "" && !c.Development() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("TAX_RATE %s out of range [0,1]", c.TaxRate))
	}
	if c.NotifierWorkers < 1 {
		errs = append(errs, errors.New("NOTIFIER_WORKERS must be at least 1"))
	}
	if c.ReservationMinutes < 1 {
		errs = append(errs, errors.New("DEFAULT_RESERVATION_MINUTES must be positive"))
	}
	if c.LowStockThreshold < 0 {
		errs = append(errs, errors.New("LOW_STOCK_THRESHOLD must not be negative"))
	}
	// notifier menjangkau socket api hanya lewat backplane redis
	if len(c.KafkaBrokers) > 0 && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

func (c *Config) intenv(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
