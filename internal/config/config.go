// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort           = "8080"
	DefaultModelFile      = "butterfly-model.onnx"
	DefaultMaxUpload      = 10 << 20
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	Port string

	// Root is the installation directory relative paths resolve against.
	Root string

	ModelPath   string
	ORTLibrary  string
	Workers     int
	Threads     int
	DetailsPath string

	DBDriver string
	DBDSN    string

	MaxUpload      int64
	RequestTimeout time.Duration
	Origins        []string
	Debug          bool

	TelegramToken string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	s := getEnv(k, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		slog.Warn("invalid integer, using default", "key", k, "value", s, "default", def)
		return def
	}
	return n
}

func getDuration(k string, def time.Duration) time.Duration {
	s := getEnv(k, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		// bare numbers are seconds
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
		slog.Warn("invalid duration, using default", "key", k, "value", s, "default", def)
		return def
	}
	return d
}

func getBool(k string) bool {
	s := getEnv(k, "")
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		slog.Warn("invalid boolean, using false", "key", k, "value", s)
		return false
	}
	return b
}

// Load reads the environment. It never fails on a bad value; it logs and
// falls back to the default instead.
func Load() (*Config, error) {
	root, err := root()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Root:           root,
		ORTLibrary:     getEnv("BUTTERFLY_ORT_LIB", ""),
		Workers:        getInt("BUTTERFLY_WORKERS", 1),
		Threads:        getInt("BUTTERFLY_THREADS", 0),
		DBDriver:       getEnv("BUTTERFLY_DB_DRIVER", "sqlite3"),
		MaxUpload:      int64(getInt("BUTTERFLY_MAX_UPLOAD", DefaultMaxUpload)),
		RequestTimeout: getDuration("BUTTERFLY_REQUEST_TIMEOUT", DefaultRequestTimeout),
		Debug:          getBool("BUTTERFLY_DEBUG"),
		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
	}
	cfg.ModelPath = cfg.Resolve(getEnv("BUTTERFLY_MODEL_PATH", filepath.Join("models", DefaultModelFile)))
	if p := getEnv("BUTTERFLY_DETAILS_PATH", ""); p != "" {
		cfg.DetailsPath = cfg.Resolve(p)
	}
	cfg.DBDSN = getEnv("BUTTERFLY_DB_DSN", "")
	if cfg.DBDSN == "" && cfg.DBDriver == "sqlite3" {
		cfg.DBDSN = filepath.Join(cfg.Root, "butterfly.db")
	}
	for _, o := range strings.Split(getEnv("BUTTERFLY_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.Origins = append(cfg.Origins, o)
		}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return cfg, cfg.Validate()
}

// Validate rejects combinations that cannot serve requests.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported BUTTERFLY_DB_DRIVER %q: want sqlite3 or pgx", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("BUTTERFLY_DB_DSN is required for driver %s", c.DBDriver)
	}
	if c.MaxUpload <= 0 {
		return fmt.Errorf("BUTTERFLY_MAX_UPLOAD must be positive")
	}
	return nil
}

// Resolve makes p absolute against Root.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// LogValue keeps the bot token out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("root", c.Root),
		slog.String("model", c.ModelPath),
		slog.Int("workers", c.Workers),
		slog.Int("threads", c.Threads),
		slog.String("db_driver", c.DBDriver),
		slog.Int64("max_upload", c.MaxUpload),
		slog.Duration("request_timeout", c.RequestTimeout),
		slog.Any("origins", c.Origins),
		slog.Bool("debug", c.Debug),
		slog.Bool("telegram", c.TelegramToken != ""),
	)
}

func root() (string, error) {
	if r := getEnv("BUTTERFLY_ROOT", ""); r != "" {
		return filepath.Abs(r)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	// running from cmd/server
	if filepath.Base(wd) == "server" && filepath.Base(filepath.Dir(wd)) == "cmd" {
		wd = filepath.Join(wd, "..", "..")
	}
	return filepath.Clean(wd), nil
}
