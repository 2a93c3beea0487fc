// Package config resolves client settings. Later sources win:
// defaults, .env, the YAML config file, DEFECTS_* variables, then CLI flags
// (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "http://localhost:5000"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxUploadBytes = int64(16 << 20)
)

type Config struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" json:"max_upload_bytes"`
	LogFile        string        `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	LogLevel       string        `yaml:"log_level" json:"log_level"`
	LogMode        string        `yaml:"log_mode" json:"log_mode"`
	Format         string        `yaml:"format" json:"format"`

	// Source is the config file that was read, if any.
	Source string `yaml:"-" json:"source,omitempty"`
}

func Defaults() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        DefaultTimeout,
		MaxUploadBytes: DefaultMaxUploadBytes,
		LogLevel:       "warn",
		LogMode:        "prod",
		Format:         "json",
	}
}

func Dir() (string, error) {
	// Test/advanced override.
	if v := strings.TrimSpace(os.Getenv("DEFECTS_CONFIG_DIR")); v != "" {
		return v, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "wafer-defects"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load resolves everything but flags. An explicit path must exist; the
// default path is optional.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		p, err := Path()
		if err != nil {
			return cfg, err
		}
		path = p
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Source = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	cfg.BaseURL = readEnv("DEFECTS_BASE_URL", cfg.BaseURL)
	cfg.LogFile = readEnv("DEFECTS_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = readEnv("DEFECTS_LOG_LEVEL", cfg.LogLevel)
	cfg.LogMode = readEnv("DEFECTS_LOG_MODE", cfg.LogMode)
	cfg.Format = readEnv("DEFECTS_FORMAT", cfg.Format)
	if cfg.Timeout, err = parseDuration("DEFECTS_TIMEOUT", cfg.Timeout); err != nil {
		return cfg, err
	}
	if cfg.MaxUploadBytes, err = parseInt64("DEFECTS_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL: %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %s", c.Timeout)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive: %d", c.MaxUploadBytes)
	}
	switch c.Format {
	case "json", "edn":
	default:
		return fmt.Errorf("unsupported format: %q (expected json|edn)", c.Format)
	}
	return nil
}

// Save writes cfg to path (the default path when empty) and returns it.
func Save(cfg Config, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		p, err := Path()
		if err != nil {
			return "", err
		}
		path = p
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return path, atomicWriteFile(dir, "config.yaml.*.tmp", path, b, 0o600)
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func parseInt64(key string, def int64) (int64, error) {
	v := readEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := readEnv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
