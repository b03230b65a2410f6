package seed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/config"
)

type Config struct {
	DSN       string
	Schema    string
	Customers int
	Products  int
	Orders    int
	BatchSize int
	Reset     bool
	Seed      int64
}

func DefaultConfig() Config {
	return Config{
		Schema:    "public",
		Customers: 200,
		Products:  40,
		Orders:    2000,
		BatchSize: 250,
		Seed:      time.Now().UTC().UnixNano(),
	}
}

type envBinding struct {
	key   string
	apply func(cfg *Config, raw string) error
}

// Later bindings win, so ASKDB_DEMO_DSN overrides the API's ASKDB_DB_DSN.
var envBindings = []envBinding{
	{"ASKDB_DB_DSN", text(func(c *Config) *string { return &c.DSN })},
	{"ASKDB_DEMO_DSN", text(func(c *Config) *string { return &c.DSN })},
	{"ASKDB_DEMO_SCHEMA", text(func(c *Config) *string { return &c.Schema })},
	{"ASKDB_DEMO_CUSTOMERS", parsed(strconv.Atoi, func(c *Config) *int { return &c.Customers })},
	{"ASKDB_DEMO_PRODUCTS", parsed(strconv.Atoi, func(c *Config) *int { return &c.Products })},
	{"ASKDB_DEMO_ORDERS", parsed(strconv.Atoi, func(c *Config) *int { return &c.Orders })},
	{"ASKDB_DEMO_BATCH_SIZE", parsed(strconv.Atoi, func(c *Config) *int { return &c.BatchSize })},
	{"ASKDB_DEMO_RESET", parsed(strconv.ParseBool, func(c *Config) *bool { return &c.Reset })},
	{"ASKDB_DEMO_SEED", parsed(parseInt64, func(c *Config) *int64 { return &c.Seed })},
}

// LoadConfigFromEnv reads the ASKDB_DEMO_* settings on top of DefaultConfig.
// The DSN falls back to ASKDB_DB_DSN so the demo lands in the database the
// API queries. Blank values keep the default.
func LoadConfigFromEnv(lookup config.LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, errors.New("lookup function is required")
	}
	cfg := DefaultConfig()
	for _, binding := range envBindings {
		raw, ok := lookup(binding.key)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		if err := binding.apply(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", binding.key, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.DSN == "":
		return errors.New("ASKDB_DEMO_DSN or ASKDB_DB_DSN is required")
	case c.Schema == "":
		return errors.New("ASKDB_DEMO_SCHEMA is required")
	case c.Customers <= 0:
		return errors.New("ASKDB_DEMO_CUSTOMERS must be > 0")
	case c.Products <= 0:
		return errors.New("ASKDB_DEMO_PRODUCTS must be > 0")
	case c.Orders < 0:
		return errors.New("ASKDB_DEMO_ORDERS must be >= 0")
	case c.BatchSize <= 0:
		return errors.New("ASKDB_DEMO_BATCH_SIZE must be > 0")
	}
	return nil
}

func text(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		*field(cfg) = raw
		return nil
	}
}

func parsed[T any](parse func(string) (T, error), field func(*Config) *T) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		value, err := parse(raw)
		if err != nil {
			return err
		}
		*field(cfg) = value
		return nil
	}
}

func parseInt64(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
