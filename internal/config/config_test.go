package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wrenrc")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "maildir: [broken")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid YAML")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EDITOR", "")
	t.Setenv("VISUAL", "")
	path := writeTempConfig(t, "default_from: me@example.com\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Editor != "nano" {
		t.Fatalf("expected nano fallback, got %q", cfg.Editor)
	}
	if !strings.HasSuffix(cfg.Maildir, "wren") {
		t.Fatalf("expected default maildir, got %q", cfg.Maildir)
	}
}

func TestLoadEditorFromEnv(t *testing.T) {
	t.Setenv("EDITOR", "vim")
	path := writeTempConfig(t, "maildir: /tmp/mail\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Editor != "vim" {
		t.Fatalf("expected vim, got %q", cfg.Editor)
	}
}

func TestLoadIdentityEnvOverlay(t *testing.T) {
	t.Setenv(envSMTPUser, "envuser")
	t.Setenv(envSMTPPass, "envpass")
	path := writeTempConfig(t, `
maildir: /tmp/mail
default_from: me@example.com
identities:
  me@example.com:
    from: Me <me@example.com>
    smtp_host: smtp.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	id := cfg.Identities["me@example.com"]
	if id.SMTPUsername != "envuser" || id.SMTPPassword != "envpass" {
		t.Fatalf("env overlay not applied: %+v", id)
	}
	if id.Address != "me@example.com" {
		t.Fatalf("identity address not backfilled: %q", id.Address)
	}
}

func TestValidateDefaultFromNeedsIdentity(t *testing.T) {
	path := writeTempConfig(t, `
maildir: /tmp/mail
default_from: ghost@example.com
identities:
  me@example.com:
    from: Me <me@example.com>
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for unmatched default_from")
	} else if !strings.Contains(err.Error(), "default_from") {
		t.Fatalf("expected default_from error, got: %v", err)
	}
}

func TestValidateEmptyFilter(t *testing.T) {
	path := writeTempConfig(t, `
maildir: /tmp/mail
filters:
  cur:
    - []
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for empty filter spec")
	}
}

func TestIdentityFallsBackToDefault(t *testing.T) {
	cfg := Config{
		DefaultFrom: "me@example.com",
		Identities: map[string]Identity{
			"me@example.com": {Address: "me@example.com"},
		},
	}
	if _, ok := cfg.Identity("other@example.com"); !ok {
		t.Fatalf("expected fallback to default identity")
	}
	if _, ok := (Config{}).Identity("anyone@example.com"); ok {
		t.Fatalf("expected no identity")
	}
}

func TestParseTimeout(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"", 0, false},
		{"5", 5 * time.Second, false},
		{"30s", 30 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"-1", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseTimeout(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("ParseTimeout(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeout(%q): %v", tc.in, err)
		} else if got != tc.want {
			t.Errorf("ParseTimeout(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTimeoutDefault(t *testing.T) {
	if got := (Config{}).Timeout(); got != DefaultAbortTimeout {
		t.Fatalf("expected default timeout, got %v", got)
	}
	if got := (Config{AbortTimeout: "10"}).Timeout(); got != 10*time.Second {
		t.Fatalf("expected 10s, got %v", got)
	}
}
