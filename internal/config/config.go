// Package config loads and hot-reloads configuration for the agent and
// server binaries. Values come from the process environment, optionally
// seeded from a .env file, following the teacher's env-first convention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AgentConfig configures the host agent binary (spec §1, §4).
type AgentConfig struct {
	AgentID       string
	ServerURL     string
	DataDir       string
	LogLevel      string
	PollInterval  time.Duration
	FlushInterval time.Duration
	BatchSize     int
	MetricsAddr   string
	IgnoreGlobs   []string
	LogPaths      []string
}

// ServerConfig configures the central server binary (spec §5-§10).
type ServerConfig struct {
	ListenAddr    string
	DatabaseURL   string
	LogLevel      string
	JWTSecret     string
	JWTTTL        time.Duration
	CorrelatorTick time.Duration
	OIDCEnabled   bool
	OIDCIssuerURL string
	OIDCClientID  string
	OIDCClientSecret string
	OIDCRedirectURL  string
	MLArtifactPath   string
}

// LoadAgentConfig loads AgentConfig from the environment, first merging in
// the .env file in the working directory, if there is one.
func LoadAgentConfig() (*AgentConfig, error) {
	loadDotEnv()

	cfg := &AgentConfig{
		AgentID:       os.Getenv("AEGIS_AGENT_ID"),
		ServerURL:     getEnvDefault("AEGIS_SERVER_URL", "http://localhost:8443"),
		DataDir:       getEnvDefault("AEGIS_DATA_DIR", "/var/lib/aegis-agent"),
		LogLevel:      getEnvDefault("AEGIS_LOG_LEVEL", "info"),
		MetricsAddr:   getEnvDefault("AEGIS_METRICS_ADDR", ":9100"),
		PollInterval:  getEnvDuration("AEGIS_POLL_INTERVAL", 10*time.Second),
		FlushInterval: getEnvDuration("AEGIS_FLUSH_INTERVAL", 5*time.Second),
		BatchSize:     getEnvInt("AEGIS_BATCH_SIZE", 200),
	}
	if globs := os.Getenv("AEGIS_IGNORE_GLOBS"); globs != "" {
		cfg.IgnoreGlobs = splitCSV(globs)
	}
	if paths := os.Getenv("AEGIS_LOG_PATHS"); paths != "" {
		cfg.LogPaths = splitCSV(paths)
	} else {
		cfg.LogPaths = []string{"/var/log/auth.log"}
	}

	if cfg.AgentID == "" {
		return nil, fmt.Errorf("config: AEGIS_AGENT_ID is required")
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("config: AEGIS_SERVER_URL is required")
	}
	return cfg, nil
}

// LoadServerConfig loads ServerConfig from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	loadDotEnv()

	cfg := &ServerConfig{
		ListenAddr:       getEnvDefault("AEGIS_LISTEN_ADDR", ":8443"),
		DatabaseURL:      os.Getenv("AEGIS_DATABASE_URL"),
		LogLevel:         getEnvDefault("AEGIS_LOG_LEVEL", "info"),
		JWTSecret:        os.Getenv("AEGIS_JWT_SECRET"),
		JWTTTL:           getEnvDuration("AEGIS_JWT_TTL", 12*time.Hour),
		CorrelatorTick:   getEnvDuration("AEGIS_CORRELATOR_TICK", 30*time.Second),
		OIDCEnabled:      getEnvBool("AEGIS_OIDC_ENABLED", false),
		OIDCIssuerURL:    os.Getenv("AEGIS_OIDC_ISSUER_URL"),
		OIDCClientID:     os.Getenv("AEGIS_OIDC_CLIENT_ID"),
		OIDCClientSecret: os.Getenv("AEGIS_OIDC_CLIENT_SECRET"),
		OIDCRedirectURL:  os.Getenv("AEGIS_OIDC_REDIRECT_URL"),
		MLArtifactPath:   os.Getenv("AEGIS_ML_ARTIFACT_PATH"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: AEGIS_DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: AEGIS_JWT_SECRET is required")
	}
	if cfg.OIDCEnabled && (cfg.OIDCIssuerURL == "" || cfg.OIDCClientID == "") {
		return nil, fmt.Errorf("config: AEGIS_OIDC_ISSUER_URL and AEGIS_OIDC_CLIENT_ID are required when OIDC is enabled")
	}
	return cfg, nil
}

// loadDotEnv merges a .env file into the process environment if present.
// Existing environment variables always win (godotenv.Load semantics),
// matching the teacher's layered env/.env precedence.
func loadDotEnv() {
	_ = godotenv.Load()
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
