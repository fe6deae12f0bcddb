package config

import (
	"testing"
	"time"
)

func TestLoadAgentConfigDefaults(t *testing.T) {
	t.Setenv("AEGIS_AGENT_ID", "agent-1")
	t.Setenv("AEGIS_SERVER_URL", "")
	t.Setenv("AEGIS_DATA_DIR", "")
	t.Setenv("AEGIS_LOG_LEVEL", "")
	t.Setenv("AEGIS_METRICS_ADDR", "")
	t.Setenv("AEGIS_POLL_INTERVAL", "")
	t.Setenv("AEGIS_FLUSH_INTERVAL", "")
	t.Setenv("AEGIS_BATCH_SIZE", "")
	t.Setenv("AEGIS_IGNORE_GLOBS", "")

	cfg, err := LoadAgentConfig()
	if err != nil {
		t.Fatalf("LoadAgentConfig() error: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8443" {
		t.Errorf("ServerURL = %q, want default", cfg.ServerURL)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s default", cfg.PollInterval)
	}
	if cfg.BatchSize != 200 {
		t.Errorf("BatchSize = %d, want 200 default", cfg.BatchSize)
	}
}

func TestLoadAgentConfigRequiresAgentID(t *testing.T) {
	t.Setenv("AEGIS_AGENT_ID", "")
	if _, err := LoadAgentConfig(); err == nil {
		t.Error("LoadAgentConfig() should error without AEGIS_AGENT_ID")
	}
}

func TestLoadAgentConfigParsesIgnoreGlobs(t *testing.T) {
	t.Setenv("AEGIS_AGENT_ID", "agent-1")
	t.Setenv("AEGIS_IGNORE_GLOBS", "*.tmp, /proc/*,  ")

	cfg, err := LoadAgentConfig()
	if err != nil {
		t.Fatalf("LoadAgentConfig() error: %v", err)
	}
	want := []string{"*.tmp", "/proc/*"}
	if len(cfg.IgnoreGlobs) != len(want) {
		t.Fatalf("IgnoreGlobs = %v, want %v", cfg.IgnoreGlobs, want)
	}
	for i := range want {
		if cfg.IgnoreGlobs[i] != want[i] {
			t.Errorf("IgnoreGlobs[%d] = %q, want %q", i, cfg.IgnoreGlobs[i], want[i])
		}
	}
}

func TestLoadServerConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("AEGIS_DATABASE_URL", "")
	t.Setenv("AEGIS_JWT_SECRET", "secret")
	if _, err := LoadServerConfig(); err == nil {
		t.Error("LoadServerConfig() should error without AEGIS_DATABASE_URL")
	}
}

func TestLoadServerConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("AEGIS_DATABASE_URL", "postgres://localhost/aegis")
	t.Setenv("AEGIS_JWT_SECRET", "")
	if _, err := LoadServerConfig(); err == nil {
		t.Error("LoadServerConfig() should error without AEGIS_JWT_SECRET")
	}
}

func TestLoadServerConfigRejectsIncompleteOIDC(t *testing.T) {
	t.Setenv("AEGIS_DATABASE_URL", "postgres://localhost/aegis")
	t.Setenv("AEGIS_JWT_SECRET", "secret")
	t.Setenv("AEGIS_OIDC_ENABLED", "true")
	t.Setenv("AEGIS_OIDC_ISSUER_URL", "")
	t.Setenv("AEGIS_OIDC_CLIENT_ID", "")
	if _, err := LoadServerConfig(); err == nil {
		t.Error("LoadServerConfig() should error when OIDC is enabled without issuer/client id")
	}
}

func TestLoadServerConfigAcceptsValidOIDC(t *testing.T) {
	t.Setenv("AEGIS_DATABASE_URL", "postgres://localhost/aegis")
	t.Setenv("AEGIS_JWT_SECRET", "secret")
	t.Setenv("AEGIS_OIDC_ENABLED", "true")
	t.Setenv("AEGIS_OIDC_ISSUER_URL", "https://idp.example.com")
	t.Setenv("AEGIS_OIDC_CLIENT_ID", "cid")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("LoadServerConfig() error: %v", err)
	}
	if !cfg.OIDCEnabled {
		t.Error("OIDCEnabled = false, want true")
	}
}
