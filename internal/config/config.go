// Package config собирает настройки сервиса предложений: значения по
// умолчанию, затем YAML-файл, затем переменные окружения, затем флаги.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	PostgresConn    string        `yaml:"postgres_conn"`
	ServerAddress   string        `yaml:"server_address"`
	LogLevel        string        `yaml:"log_level"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	RunMigrations   bool          `yaml:"run_migrations"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Default() Config {
	return Config{
		ServerAddress:   "0.0.0.0:8080",
		LogLevel:        "info",
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		RunMigrations:   true,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load разбирает args (без имени программы). getenv обычно os.Getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("proposal-server", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	addr := fs.String("addr", cfg.ServerAddress, "HTTP listen address")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	migrate := fs.Bool("migrate", cfg.RunMigrations, "apply database migrations on startup")
	rps := fs.Float64("rate-limit-rps", cfg.RateLimitRPS, "requests per second per client, 0 disables limiting")
	burst := fs.Int("rate-limit-burst", cfg.RateLimitBurst, "rate limiter burst size")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(getenv); err != nil {
		return nil, err
	}

	if fs.Changed("addr") {
		cfg.ServerAddress = *addr
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("migrate") {
		cfg.RunMigrations = *migrate
	}
	if fs.Changed("rate-limit-rps") {
		cfg.RateLimitRPS = *rps
	}
	if fs.Changed("rate-limit-burst") {
		cfg.RateLimitBurst = *burst
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv(getenv func(string) string) error {
	if v := getenv("POSTGRES_CONN"); v != "" {
		c.PostgresConn = v
	}
	if v := getenv("SERVER_ADDRESS"); v != "" {
		c.ServerAddress = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		c.RateLimitRPS = rps
	}
	if v := getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		c.RateLimitBurst = burst
	}
	if v := getenv("RUN_MIGRATIONS"); v != "" {
		run, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUN_MIGRATIONS: %w", err)
		}
		c.RunMigrations = run
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.PostgresConn == "" {
		errs = append(errs, errors.New("POSTGRES_CONN is not set"))
	}
	if c.ServerAddress == "" {
		errs = append(errs, errors.New("server address is empty"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("rate limit burst must be at least 1"))
	}
	return errors.Join(errs...)
}

// SlogLevel переводит LogLevel в уровень slog.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
