// Package config loads the digest configuration from an optional YAML file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/naka-gawa/github-digest/internal/domain"
	"github.com/naka-gawa/github-digest/internal/gateway"
)

var (
	// ErrMissingToken is returned when GITHUB_TOKEN is unset.
	ErrMissingToken = errors.New("GITHUB_TOKEN environment variable is not set")
	// ErrNoRepositories is returned when no repository is configured.
	ErrNoRepositories = errors.New("no repositories configured")
)

// DefaultRepositories are watched when neither the file, the environment nor
// the command line name any.
var DefaultRepositories = []string{
	"apache/arrow",
	"apache/arrow-adbc",
	"apache/arrow-go",
	"apache/arrow-js",
	"apache/arrow-dotnet",
}

// Config holds the application configuration.
type Config struct {
	GitHubToken  string
	Repositories []domain.Repository
	Lookback     time.Duration
	Concurrency  int
	// CacheDir holds cached GitHub responses between runs; empty disables the cache.
	CacheDir     string
	Mail         gateway.SMTPConfig
}

// Overrides are command-line values that take precedence over the file and
// the environment. Nil fields are left untouched.
type Overrides struct {
	Repositories []string
	Lookback     *time.Duration
	Concurrency  *int
	CacheDir     *string
}

// fileConfig mirrors the YAML layout.
type fileConfig struct {
	Repositories []string `yaml:"repositories"`
	Lookback     string   `yaml:"lookback"`
	Concurrency  int      `yaml:"concurrency"`
	CacheDir     string   `yaml:"cache_dir"`
	Mail         struct {
		From string   `yaml:"from"`
		To   []string `yaml:"to"`
		SMTP struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			TLS      string `yaml:"tls"`
			Timeout  string `yaml:"timeout"`
		} `yaml:"smtp"`
	} `yaml:"mail"`
}

// Load reads the YAML file at path (skipped when path is empty), then applies
// environment overrides: GITHUB_TOKEN, DIGEST_REPOSITORIES (comma-separated),
// DIGEST_LOOKBACK, DIGEST_CONCURRENCY, DIGEST_CACHE_DIR, DIGEST_MAIL_FROM, DIGEST_MAIL_TO,
// DIGEST_SMTP_HOST, DIGEST_SMTP_PORT, DIGEST_SMTP_USERNAME, DIGEST_SMTP_PASSWORD
// and DIGEST_SMTP_TLS. The SMTP password is only read from the environment.
func Load(path string) (*Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	repoNames := fc.Repositories
	if v, ok := os.LookupEnv("DIGEST_REPOSITORIES"); ok && v != "" {
		repoNames = SplitList(v)
	}
	if len(repoNames) == 0 {
		repoNames = DefaultRepositories
	}
	repos, err := ParseRepositories(repoNames)
	if err != nil {
		return nil, err
	}

	lookback := 24 * time.Hour
	if v := getEnvOrDefault("DIGEST_LOOKBACK", fc.Lookback); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("lookback has invalid duration %q: %w", v, err)
		}
		lookback = parsed
	}

	concurrency := 4
	if fc.Concurrency != 0 {
		concurrency = fc.Concurrency
	}
	if v := os.Getenv("DIGEST_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DIGEST_CONCURRENCY has invalid value %q: %w", v, err)
		}
		concurrency = n
	}

	port := 587
	if fc.Mail.SMTP.Port != 0 {
		port = fc.Mail.SMTP.Port
	}
	if v := os.Getenv("DIGEST_SMTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DIGEST_SMTP_PORT has invalid value %q: %w", v, err)
		}
		port = n
	}

	timeout := 30 * time.Second
	if v := fc.Mail.SMTP.Timeout; v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("mail.smtp.timeout has invalid duration %q: %w", v, err)
		}
		timeout = parsed
	}

	to := fc.Mail.To
	if v, ok := os.LookupEnv("DIGEST_MAIL_TO"); ok && v != "" {
		to = SplitList(v)
	}

	cfg := &Config{
		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		Repositories: repos,
		Lookback:     lookback,
		Concurrency:  concurrency,
		CacheDir:     getEnvOrDefault("DIGEST_CACHE_DIR", fc.CacheDir),
		Mail: gateway.SMTPConfig{
			Host:     getEnvOrDefault("DIGEST_SMTP_HOST", fc.Mail.SMTP.Host),
			Port:     port,
			Username: getEnvOrDefault("DIGEST_SMTP_USERNAME", fc.Mail.SMTP.Username),
			Password: os.Getenv("DIGEST_SMTP_PASSWORD"),
			TLS:      getEnvOrDefault("DIGEST_SMTP_TLS", fc.Mail.SMTP.TLS),
			From:     getEnvOrDefault("DIGEST_MAIL_FROM", fc.Mail.From),
			To:       to,
			Timeout:  timeout,
		},
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultCacheDir returns github-digest under the user cache directory, or ""
// when the platform has none.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "github-digest")
}

// Apply sets the non-nil overrides and validates the result, so a flag cannot
// smuggle in a value Load would have rejected.
func (c *Config) Apply(o Overrides) error {
	if len(o.Repositories) > 0 {
		if err := c.OverrideRepositories(o.Repositories); err != nil {
			return err
		}
	}
	if o.Lookback != nil {
		c.Lookback = *o.Lookback
	}
	if o.Concurrency != nil {
		c.Concurrency = *o.Concurrency
	}
	if o.CacheDir != nil {
		c.CacheDir = *o.CacheDir
	}
	return c.validate()
}

func (c *Config) validate() error {
	if c.Lookback <= 0 {
		return fmt.Errorf("lookback must be positive, got %s", c.Lookback)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	switch c.Mail.TLS {
	case "", gateway.TLSMandatory, gateway.TLSOpportunistic, gateway.TLSNone, gateway.TLSImplicit:
	default:
		return fmt.Errorf("unknown smtp tls mode %q", c.Mail.TLS)
	}
	return nil
}

// ValidateMail reports the mail settings missing for an actual send.
func (c *Config) ValidateMail() error {
	var missing []string
	if c.Mail.Host == "" {
		missing = append(missing, "smtp host")
	}
	if c.Mail.From == "" {
		missing = append(missing, "sender address")
	}
	if len(c.Mail.To) == 0 {
		missing = append(missing, "recipients")
	}
	if c.Mail.Port < 1 || c.Mail.Port > 65535 {
		missing = append(missing, "valid smtp port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("mail is not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateToken returns ErrMissingToken when no GitHub token is available.
func (c *Config) ValidateToken() error {
	if c.GitHubToken == "" {
		return ErrMissingToken
	}
	return nil
}

// OverrideRepositories replaces the configured repositories, typically from --repos.
func (c *Config) OverrideRepositories(names []string) error {
	repos, err := ParseRepositories(names)
	if err != nil {
		return err
	}
	c.Repositories = repos
	return nil
}

// ParseRepositories parses and de-duplicates owner/name strings, keeping order.
func ParseRepositories(names []string) ([]domain.Repository, error) {
	seen := make(map[string]bool, len(names))
	repos := make([]domain.Repository, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		repo, err := domain.ParseRepository(name)
		if err != nil {
			return nil, err
		}
		if seen[repo.FullName()] {
			continue
		}
		seen[repo.FullName()] = true
		repos = append(repos, repo)
	}
	if len(repos) == 0 {
		return nil, ErrNoRepositories
	}
	return repos, nil
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
