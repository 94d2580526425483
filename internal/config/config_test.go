package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "server:\n  addr: \":9999\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Pipeline.Budget.Std() != 60*time.Second {
		t.Errorf("Budget = %v, want 60s", cfg.Pipeline.Budget.Std())
	}
	if len(cfg.Providers) != 5 {
		t.Fatalf("got %d default providers, want 5", len(cfg.Providers))
	}
	if cfg.Providers[0].ID != "apollo" || cfg.Providers[0].Priority != 5 {
		t.Errorf("first provider = %s/%d, want apollo/5", cfg.Providers[0].ID, cfg.Providers[0].Priority)
	}
	if cfg.Generator.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Generator.MaxAttempts)
	}
	if cfg.Render.URLTTL.Std() != 7*24*time.Hour {
		t.Errorf("URLTTL = %v, want 168h", cfg.Render.URLTTL.Std())
	}
}

func TestLoadParsesDurations(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
pipeline:
  budget: 90s
providers:
  - id: apollo
    priority: 5
    timeout: 10s
    fields: [full_name]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Budget.Std() != 90*time.Second {
		t.Errorf("Budget = %v, want 90s", cfg.Pipeline.Budget.Std())
	}
	if cfg.Providers[0].Timeout.Std() != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Providers[0].Timeout.Std())
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yml  string
	}{
		{"unknown action", `
compliance:
  rules:
    - id: x
      action: shout
      phrases: [foo]
`},
		{"replace without replacement", `
compliance:
  rules:
    - id: x
      action: replace
      phrases: [foo]
`},
		{"no phrases", `
compliance:
  rules:
    - id: x
      action: remove
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yml)
			if _, err := Load(path); err == nil {
				t.Errorf("Load accepted invalid policy")
			}
		})
	}
}

func TestLoadRejectsDuplicateProviders(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
providers:
  - id: apollo
    priority: 5
  - id: apollo
    priority: 3
`)
	if _, err := Load(path); err == nil {
		t.Error("Load accepted duplicate provider ids")
	}
}

func TestProviderAPIKeyFromEnv(t *testing.T) {
	p := Provider{ID: "apollo", APIKeyEnv: "TEST_APOLLO_KEY_92"}
	if got := p.APIKey(); got != "" {
		t.Errorf("APIKey = %q, want empty when unset", got)
	}
	t.Setenv("TEST_APOLLO_KEY_92", "ak-123")
	if got := p.APIKey(); got != "ak-123" {
		t.Errorf("APIKey = %q, want ak-123", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "42")
	t.Setenv("TEST_ENV_BOOL", "true")
	t.Setenv("TEST_ENV_DUR", "2m")

	if got := EnvInt("TEST_ENV_INT", 7); got != 42 {
		t.Errorf("EnvInt = %d, want 42", got)
	}
	if got := EnvInt("TEST_ENV_MISSING", 7); got != 7 {
		t.Errorf("EnvInt fallback = %d, want 7", got)
	}
	if !EnvBool("TEST_ENV_BOOL", false) {
		t.Error("EnvBool = false, want true")
	}
	if got := EnvDuration("TEST_ENV_DUR", time.Second); got != 2*time.Minute {
		t.Errorf("EnvDuration = %v, want 2m", got)
	}
}
