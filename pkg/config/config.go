package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DB    *Postgres `yaml:"database"`
	RMQ   *RabbitMQ `yaml:"rabbitmq"`
	Redis *Redis    `yaml:"redis"`
	Auth  *Auth     `yaml:"auth"`
	Sync  *Sync     `yaml:"sync"`
	Store *Store    `yaml:"store"`
	Log   *Log      `yaml:"log"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode" envconfig:"SSLMODE"`
	MaxConns int32  `yaml:"max_conns" envconfig:"MAX_CONNS"`
}

type RabbitMQ struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	VHost    string `yaml:"vhost"`
	Enabled  bool   `yaml:"enabled"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL"`
}

// Sync holds the polling cadence per view and the reconciliation grace windows.
type Sync struct {
	KitchenInterval   time.Duration `yaml:"kitchen_interval" envconfig:"KITCHEN_INTERVAL"`
	ServerInterval    time.Duration `yaml:"server_interval" envconfig:"SERVER_INTERVAL"`
	CancelledInterval time.Duration `yaml:"cancelled_interval" envconfig:"CANCELLED_INTERVAL"`
	CustomerInterval  time.Duration `yaml:"customer_interval" envconfig:"CUSTOMER_INTERVAL"`
	AdminInterval     time.Duration `yaml:"admin_interval" envconfig:"ADMIN_INTERVAL"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT"`
	MaxBackoff        time.Duration `yaml:"max_backoff" envconfig:"MAX_BACKOFF"`
	ReadyGrace        time.Duration `yaml:"ready_grace" envconfig:"READY_GRACE"`
	RetainCycles      int           `yaml:"retain_cycles" envconfig:"RETAIN_CYCLES"`
	PageLimit         int           `yaml:"page_limit" envconfig:"PAGE_LIMIT"`
}

type Store struct {
	Backend           string        `yaml:"backend"`
	CacheTTL          time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	TransitionRetries int           `yaml:"transition_retries" envconfig:"TRANSITION_RETRIES"`
	MaxPageLimit      int           `yaml:"max_page_limit" envconfig:"MAX_PAGE_LIMIT"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when neither a file nor the environment says otherwise.
func Default() *Config {
	return &Config{
		DB: &Postgres{
			Host:     "localhost",
			Port:     "5432",
			User:     "admin",
			Password: "admin",
			Database: "restaurant_db",
			SSLMode:  "disable",
			MaxConns: 25,
		},
		RMQ: &RabbitMQ{
			User:     "guest",
			Password: "guest",
			Host:     "localhost",
			Port:     "5672",
			VHost:    "",
		},
		Redis: &Redis{
			Addr: "localhost:6379",
		},
		Auth: &Auth{
			TokenTTL: 12 * time.Hour,
		},
		Sync: &Sync{
			KitchenInterval:   5 * time.Second,
			ServerInterval:    10 * time.Second,
			CancelledInterval: 15 * time.Second,
			CustomerInterval:  10 * time.Second,
			AdminInterval:     2 * time.Minute,
			FetchTimeout:      5 * time.Second,
			MaxBackoff:        time.Minute,
			ReadyGrace:        30 * time.Second,
			RetainCycles:      1,
			PageLimit:         200,
		},
		Store: &Store{
			Backend:           "postgres",
			CacheTTL:          2 * time.Second,
			TransitionRetries: 3,
			MaxPageLimit:      500,
		},
		Log: &Log{Level: "info"},
	}
}

// LoadConfig layers defaults, the yaml file at configPath (optional), a .env file
// and finally environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", configPath, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// env only
		default:
			return nil, err
		}
	}

	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"postgres", cfg.DB},
		{"rabbitmq", cfg.RMQ},
		{"redis", cfg.Redis},
		{"auth", cfg.Auth},
		{"sync", cfg.Sync},
		{"store", cfg.Store},
		{"log", cfg.Log},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return fmt.Errorf("env %s: %w", s.prefix, err)
		}
	}
	return nil
}

// Validate checks values that would otherwise fail much later at runtime.
func (c *Config) Validate() error {
	if c.Sync.RetainCycles < 0 {
		return fmt.Errorf("sync.retain_cycles cannot be negative: %d", c.Sync.RetainCycles)
	}
	if c.Sync.PageLimit <= 0 {
		return fmt.Errorf("sync.page_limit must be positive: %d", c.Sync.PageLimit)
	}
	if c.Store.MaxPageLimit <= 0 {
		return fmt.Errorf("store.max_page_limit must be positive: %d", c.Store.MaxPageLimit)
	}
	switch c.Store.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("store.backend must be postgres or memory: %q", c.Store.Backend)
	}
	return nil
}

// DSN builds the postgres connection string.
func (p *Postgres) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Database,
		p.SSLMode,
	)
}

// URL builds the amqp connection string.
func (r *RabbitMQ) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		r.User,
		r.Password,
		r.Host,
		r.Port,
		r.VHost,
	)
}
