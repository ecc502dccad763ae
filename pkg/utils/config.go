package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Config is loaded from defaults, then an optional TOML file, then the
// environment. Later layers win.
type Config struct {
	DBPath   string `toml:"db_path" env:"COMICTRACKER_DB_PATH"`
	HTTPAddr string `toml:"http_addr" env:"COMICTRACKER_HTTP_ADDR"`

	Auth      AuthConfig      `toml:"auth"`
	Worker    WorkerConfig    `toml:"worker"`
	ComicVine ComicVineConfig `toml:"comicvine"`
	Log       LogConfig       `toml:"log"`
}

type AuthConfig struct {
	JWTSecret   string   `toml:"jwt_secret" env:"COMICTRACKER_JWT_SECRET"`
	JWTIssuer   string   `toml:"jwt_issuer" env:"COMICTRACKER_JWT_ISSUER"`
	JWTDuration Duration `toml:"jwt_duration" env:"COMICTRACKER_JWT_TTL"`
}

type WorkerConfig struct {
	Enabled      bool     `toml:"enabled" env:"COMICTRACKER_WORKER_ENABLED"`
	PollInterval Duration `toml:"poll_interval" env:"COMICTRACKER_WORKER_POLL_INTERVAL"`
	LockPath     string   `toml:"lock_path" env:"COMICTRACKER_WORKER_LOCK"`
}

type ComicVineConfig struct {
	BaseURL      string   `toml:"base_url" env:"COMICTRACKER_COMICVINE_URL"`
	UserAgent    string   `toml:"user_agent" env:"COMICTRACKER_COMICVINE_USER_AGENT"`
	RequestDelay Duration `toml:"request_delay" env:"COMICTRACKER_COMICVINE_DELAY"`
	Timeout      Duration `toml:"timeout" env:"COMICTRACKER_COMICVINE_TIMEOUT"`
	MaxIssues    int      `toml:"max_issues" env:"COMICTRACKER_COMICVINE_MAX_ISSUES"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"COMICTRACKER_LOG_LEVEL"`
	Format string `toml:"format" env:"COMICTRACKER_LOG_FORMAT"`
}

// Duration reads "10s" style values from both TOML and the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	dataDir := filepath.Join(home, ".comictracker")
	return Config{
		DBPath:   filepath.Join(dataDir, "data.db"),
		HTTPAddr: ":8080",
		Auth: AuthConfig{
			// dev default, override in any shared deployment
			JWTSecret:   "dev-secret-change-me",
			JWTIssuer:   "comictracker",
			JWTDuration: Duration(24 * time.Hour),
		},
		Worker: WorkerConfig{
			Enabled:      true,
			PollInterval: Duration(10 * time.Second),
			LockPath:     filepath.Join(dataDir, "worker.lock"),
		},
		ComicVine: ComicVineConfig{
			BaseURL:      "https://comicvine.gamespot.com/api",
			UserAgent:    "ComicTracker/1.0",
			RequestDelay: Duration(1200 * time.Millisecond),
			Timeout:      Duration(30 * time.Second),
			MaxIssues:    200,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the effective configuration. path may be empty, in which case
// COMICTRACKER_CONFIG is consulted.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("COMICTRACKER_CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}
	if c.ComicVine.RequestDelay < 0 {
		errs = append(errs, errors.New("comicvine.request_delay must not be negative"))
	}
	if c.ComicVine.MaxIssues <= 0 {
		errs = append(errs, errors.New("comicvine.max_issues must be positive"))
	}
	return errors.Join(errs...)
}
