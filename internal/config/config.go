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
)

const (
	envSMTPUser = "WREN_SMTP_USER"
	envSMTPPass = "WREN_SMTP_PASS"

	// DefaultAbortTimeout bounds a transport attempt when the config
	// does not set abort_timeout.
	DefaultAbortTimeout = 5 * time.Second
)

// Config holds the per-user configuration loaded from YAML.
type Config struct {
	Maildir      string                `yaml:"maildir"`
	DefaultFrom  string                `yaml:"default_from"`
	AbortTimeout string                `yaml:"abort_timeout"`
	AddressBook  []string              `yaml:"address_book"`
	DefaultPart  int                   `yaml:"default_part"`
	Editor       string                `yaml:"editor"`
	Filters      map[string][][]string `yaml:"filters"`
	MailingLists map[string][]string   `yaml:"mailing_lists"`
	Identities   map[string]Identity   `yaml:"identities"`
}

// Identity bundles a From address with its header defaults and
// transport settings. Keyed by bare address string in Config.Identities.
type Identity struct {
	Address      string `yaml:"-"`
	From         string `yaml:"from"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUseTLS   bool   `yaml:"smtp_use_tls"`
	SMTPUseSMTPS bool   `yaml:"smtp_use_smtps"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	CommonMark   *bool  `yaml:"commonmark"`
	DefaultPart  int    `yaml:"default_part"`
}

// Load reads configuration from a YAML file. The maildir path is
// tilde-expanded; a missing editor falls back to $EDITOR, $VISUAL, then nano.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	cfg.Maildir = ExpandHome(cfg.Maildir)
	if strings.TrimSpace(cfg.Maildir) == "" {
		cfg.Maildir = ExpandHome("~/wren")
	}
	if strings.TrimSpace(cfg.Editor) == "" {
		cfg.Editor = firstNonEmpty(os.Getenv("EDITOR"), os.Getenv("VISUAL"), "nano")
	}

	for addr, id := range cfg.Identities {
		id.Address = addr
		if strings.TrimSpace(id.SMTPUsername) == "" {
			id.SMTPUsername = strings.TrimSpace(os.Getenv(envSMTPUser))
		}
		if strings.TrimSpace(id.SMTPPassword) == "" {
			id.SMTPPassword = strings.TrimSpace(os.Getenv(envSMTPPass))
		}
		cfg.Identities[addr] = id
	}

	return cfg, nil
}

// Validate performs structural validation on a loaded config.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Maildir) == "" {
		return errors.New("config must define maildir")
	}
	if strings.TrimSpace(cfg.DefaultFrom) != "" && len(cfg.Identities) > 0 {
		if _, ok := cfg.Identities[cfg.DefaultFrom]; !ok {
			return fmt.Errorf("default_from %q has no matching identity", cfg.DefaultFrom)
		}
	}
	if _, err := ParseTimeout(cfg.AbortTimeout); err != nil {
		return fmt.Errorf("invalid abort_timeout: %w", err)
	}
	for folder, chain := range cfg.Filters {
		for i, spec := range chain {
			if len(spec) == 0 {
				return fmt.Errorf("filter %d for folder %q is empty", i+1, folder)
			}
		}
	}
	return nil
}

// Identity resolves the identity for a bare address. Falls back to the
// default_from identity when the address itself has no entry. The second
// return reports whether any identity was found.
func (c Config) Identity(addr string) (Identity, bool) {
	if id, ok := c.Identities[addr]; ok {
		return id, true
	}
	if id, ok := c.Identities[c.DefaultFrom]; ok {
		return id, true
	}
	return Identity{}, false
}

// Timeout returns the configured abort timeout, or the default when unset.
func (c Config) Timeout() time.Duration {
	d, err := ParseTimeout(c.AbortTimeout)
	if err != nil || d == 0 {
		return DefaultAbortTimeout
	}
	return d
}

// ParseTimeout accepts either a Go duration string ("30s", "2m") or a
// bare number of seconds. An empty value parses to zero.
func ParseTimeout(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(trimmed); err == nil {
		if secs < 0 {
			return 0, errors.New("timeout must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	dur, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, errors.New("timeout must be positive")
	}
	return dur, nil
}

// ExpandHome expands a leading ~ to the current user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
