package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the fully resolved application configuration.
type Config struct {
	AppPort string
	AppEnv  string

	DatabaseDriver string
	DatabaseDSN    string

	RedisAddr    string
	CartCacheTTL time.Duration

	RabbitMQURL string
	JWTSecret   string

	// AdminAPIKey opens the back-office routes and GatewayAPIKey the payment
	// gateway callbacks. Empty keys keep those routes closed.
	AdminAPIKey   string
	GatewayAPIKey string

	Currency          string
	TaxRate           decimal.Decimal
	ShippingThreshold decimal.Decimal
	ShippingFlatFee   decimal.Decimal

	CartSessionTTL      time.Duration
	CartSweepInterval   time.Duration
	OrderNumberAttempts int
}

// SetDefaults registers every known key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "file:storefront.db?cache=shared")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("CART_CACHE_TTL", "15m")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("ADMIN_API_KEY", "")
	v.SetDefault("GATEWAY_API_KEY", "")
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("TAX_RATE", "0.10")
	v.SetDefault("SHIPPING_THRESHOLD", "100")
	v.SetDefault("SHIPPING_FLAT_FEE", "9.99")
	v.SetDefault("CART_SESSION_TTL", "72h")
	v.SetDefault("CART_SWEEP_INTERVAL", "10m")
	v.SetDefault("ORDER_NUMBER_ATTEMPTS", 5)
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory and the environment, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper resolves a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort:             v.GetString("APP_PORT"),
		AppEnv:              v.GetString("APP_ENV"),
		DatabaseDriver:      v.GetString("DATABASE_DRIVER"),
		DatabaseDSN:         v.GetString("DATABASE_DSN"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		CartCacheTTL:        v.GetDuration("CART_CACHE_TTL"),
		RabbitMQURL:         v.GetString("RABBITMQ_URL"),
		JWTSecret:           v.GetString("JWT_SECRET"),
		AdminAPIKey:         v.GetString("ADMIN_API_KEY"),
		GatewayAPIKey:       v.GetString("GATEWAY_API_KEY"),
		Currency:            v.GetString("CURRENCY"),
		CartSessionTTL:      v.GetDuration("CART_SESSION_TTL"),
		CartSweepInterval:   v.GetDuration("CART_SWEEP_INTERVAL"),
		OrderNumberAttempts: v.GetInt("ORDER_NUMBER_ATTEMPTS"),
	}

	var err error
	if cfg.TaxRate, err = decimalKey(v, "TAX_RATE"); err != nil {
		return nil, err
	}
	if cfg.ShippingThreshold, err = decimalKey(v, "SHIPPING_THRESHOLD"); err != nil {
		return nil, err
	}
	if cfg.ShippingFlatFee, err = decimalKey(v, "SHIPPING_FLAT_FEE"); err != nil {
		return nil, err
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.OrderNumberAttempts < 1 {
		return nil, fmt.Errorf("ORDER_NUMBER_ATTEMPTS must be at least 1, got %d", cfg.OrderNumberAttempts)
	}
	return cfg, nil
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.GetString(key))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
