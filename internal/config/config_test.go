package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// clearEnv blanks every config-related env var for the duration of the test.
// Empty values never override, so blank is equivalent to unset.
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"SHOPFILTER_CONFIG_PATH",
		"SHOPFILTER_DEV_MODE",
		"SHOPFILTER_PORT",
		"SHOPFILTER_READ_TIMEOUT",
		"SHOPFILTER_WRITE_TIMEOUT",
		"SHOPFILTER_SHUTDOWN_TIMEOUT",
		"SHOPFILTER_CATALOG_SOURCE",
		"SHOPFILTER_CATALOG_PATH",
		"SHOPFILTER_DB_PATH",
		"SHOPFILTER_CATALOG_WATCH",
		"SHOPFILTER_CATALOG_REFRESH_INTERVAL",
		"SHOPFILTER_S3_ENDPOINT",
		"SHOPFILTER_S3_BUCKET",
		"SHOPFILTER_S3_KEY",
		"SHOPFILTER_S3_REGION",
		"SHOPFILTER_S3_USE_SSL",
		"SHOPFILTER_S3_ACCESS_KEY",
		"SHOPFILTER_S3_SECRET_KEY",
		"OPENAI_API_KEY",
		"SHOPFILTER_LLM_MODEL",
		"SHOPFILTER_LLM_BASE_URL",
		"SHOPFILTER_LLM_TIMEOUT",
		"SHOPFILTER_LLM_TEMPERATURE",
		"SHOPFILTER_LLM_HISTORY_TURNS",
		"SHOPFILTER_API_KEY",
		"SHOPFILTER_SESSION_IDLE_TTL",
		"SHOPFILTER_SESSION_SWEEP_INTERVAL",
		"SHOPFILTER_PREVIEW_LIMIT",
		"SHOPFILTER_VOCAB_PATH",
		"SHOPFILTER_LOG_LEVEL",
		"SHOPFILTER_LOG_FORMAT",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
	}
	// Point at a path that does not exist so a developer's local config is ignored.
	t.Setenv("SHOPFILTER_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
}

func setDevModeEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SHOPFILTER_DEV_MODE", "true")
}

func setProdEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test-openai-key")
	t.Setenv("SHOPFILTER_API_KEY", "test-api-key")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shopfilter.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout.Std() != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 15s", cfg.Server.ShutdownTimeout.Std())
	}
	if cfg.Catalog.Source != SourceFile || cfg.Catalog.Path != "data/catalog.json" {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.Timeout.Std() != 20*time.Second || cfg.LLM.HistoryTurns != 10 {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Session.IdleTTL.Std() != 30*time.Minute || cfg.Session.SweepInterval.Std() != time.Minute {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Turn.PreviewLimit != 12 || cfg.Turn.ColorIntentTurns != 3 {
		t.Errorf("Turn = %+v", cfg.Turn)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_ValidationFailsWithoutAPIKeys(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("Load() error = %v, want OPENAI_API_KEY required", err)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	_, err = Load()
	if err == nil || !strings.Contains(err.Error(), "SHOPFILTER_API_KEY") {
		t.Fatalf("Load() error = %v, want SHOPFILTER_API_KEY required", err)
	}
}

func TestLoad_ValidationPassesWithAPIKeys(t *testing.T) {
	clearEnv(t)
	setProdEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "sk-test-openai-key" || cfg.Auth.APIKey != "test-api-key" {
		t.Errorf("keys not loaded: %q %q", cfg.LLM.APIKey, cfg.Auth.APIKey)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	t.Setenv("SHOPFILTER_PORT", "9090")
	t.Setenv("SHOPFILTER_CATALOG_SOURCE", "sqlite")
	t.Setenv("SHOPFILTER_DB_PATH", "/tmp/cat.db")
	t.Setenv("SHOPFILTER_LLM_MODEL", "gpt-4o")
	t.Setenv("SHOPFILTER_LLM_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("SHOPFILTER_LLM_TIMEOUT", "5s")
	t.Setenv("SHOPFILTER_LLM_TEMPERATURE", "0.7")
	t.Setenv("SHOPFILTER_LLM_HISTORY_TURNS", "4")
	t.Setenv("SHOPFILTER_SESSION_IDLE_TTL", "2h")
	t.Setenv("SHOPFILTER_PREVIEW_LIMIT", "20")
	t.Setenv("SHOPFILTER_VOCAB_PATH", "/etc/vocab.yaml")
	t.Setenv("SHOPFILTER_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Catalog.Source != SourceSQLite || cfg.Catalog.DBPath != "/tmp/cat.db" {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.LLM.Model != "gpt-4o" || cfg.LLM.BaseURL != "http://localhost:11434/v1" ||
		cfg.LLM.Timeout.Std() != 5*time.Second || cfg.LLM.Temperature != 0.7 || cfg.LLM.HistoryTurns != 4 {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Session.IdleTTL.Std() != 2*time.Hour {
		t.Errorf("IdleTTL = %v", cfg.Session.IdleTTL.Std())
	}
	if cfg.Turn.PreviewLimit != 20 || cfg.Vocab.Path != "/etc/vocab.yaml" || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_MalformedEnvVarIsError(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SHOPFILTER_PORT", "eighty"},
		{"SHOPFILTER_LLM_TIMEOUT", "soon"},
		{"SHOPFILTER_LLM_TEMPERATURE", "warm"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			setDevModeEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.key)
			}
		})
	}
}

func TestLoadFromFile_ValidYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	path := writeConfig(t, `
server:
  port: 3000
  read_timeout: 10s
catalog:
  source: file
  path: /srv/catalog.yaml
  watch: true
llm:
  model: gpt-4.1-mini
  history_turns: 6
session:
  idle_ttl: 5m
  sweep_interval: 30s
turn:
  preview_limit: 8
vocab:
  path: /srv/vocab.yaml
log:
  format: text
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Server.ReadTimeout.Std() != 10*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.WriteTimeout.Std() != 60*time.Second {
		t.Errorf("WriteTimeout default lost: %v", cfg.Server.WriteTimeout.Std())
	}
	if !cfg.Catalog.Watch || cfg.Catalog.Path != "/srv/catalog.yaml" {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.LLM.Model != "gpt-4.1-mini" || cfg.LLM.HistoryTurns != 6 {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Session.IdleTTL.Std() != 5*time.Minute || cfg.Session.SweepInterval.Std() != 30*time.Second {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Turn.PreviewLimit != 8 || cfg.Turn.ColorIntentTurns != 3 {
		t.Errorf("Turn = %+v", cfg.Turn)
	}
	if cfg.Vocab.Path != "/srv/vocab.yaml" || cfg.Log.Format != "text" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_UsesConfigPathEnv(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	t.Setenv("SHOPFILTER_CONFIG_PATH", writeConfig(t, "server:\n  port: 4321\n"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4321 {
		t.Errorf("Port = %d, want 4321", cfg.Server.Port)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	t.Setenv("SHOPFILTER_CONFIG_PATH", writeConfig(t, "llm:\n  model: from-yaml\n"))
	t.Setenv("SHOPFILTER_LLM_MODEL", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("Model = %q, want from-env", cfg.LLM.Model)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFromFile(writeConfig(t, "server: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
	_, err := LoadFromFile(writeConfig(t, "llm:\n  timeout: forever\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration", err)
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errSub string
	}{
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"unknown source", "catalog:\n  source: ftp\n", "catalog.source"},
		{"s3 without bucket", "catalog:\n  source: s3\n  s3:\n    endpoint: localhost:9000\n", "catalog.s3"},
		{"s3 watch", "catalog:\n  source: s3\n  watch: true\n  s3:\n    endpoint: localhost:9000\n    bucket: shop\n", "catalog.watch"},
		{"negative refresh", "catalog:\n  refresh_interval: -1m\n", "refresh_interval"},
		{"file without path", "catalog:\n  path: \"\"\n", "catalog.path"},
		{"sqlite watch", "catalog:\n  source: sqlite\n  watch: true\n", "catalog.watch"},
		{"zero preview", "turn:\n  preview_limit: 0\n", "preview_limit"},
		{"negative history", "llm:\n  history_turns: -1\n", "history_turns"},
		{"ttl without sweep", "session:\n  sweep_interval: 0s\n", "sweep_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setDevModeEnv(t)
			_, err := LoadFromFile(writeConfig(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("error = %v, want mention of %s", err, tt.errSub)
			}
		})
	}
}

func TestConfig_SecretsNotInYAML(t *testing.T) {
	cfg := newDefaults()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Auth.APIKey = "api-secret"
	cfg.Catalog.S3.AccessKey = "s3-access-secret"
	cfg.Catalog.S3.SecretKey = "s3-secret"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal error = %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("secrets leaked into YAML:\n%s", data)
	}
	if !strings.Contains(string(data), "idle_ttl: 30m0s") {
		t.Errorf("durations should marshal as strings:\n%s", data)
	}
}

func TestLoadCatalogConfig_NoKeysRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHOPFILTER_CATALOG_SOURCE", "sqlite")
	t.Setenv("SHOPFILTER_DB_PATH", "/tmp/products.db")

	cfg, err := LoadCatalogConfig()
	if err != nil {
		t.Fatalf("LoadCatalogConfig() error = %v", err)
	}
	if cfg.Catalog.Source != SourceSQLite || cfg.Catalog.DBPath != "/tmp/products.db" {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
}

func TestLoadCatalogConfig_ValidatesSource(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHOPFILTER_CATALOG_SOURCE", "ftp")

	if _, err := LoadCatalogConfig(); err == nil || !strings.Contains(err.Error(), "catalog.source") {
		t.Errorf("LoadCatalogConfig() error = %v, want catalog.source error", err)
	}
}

func TestLoad_S3CatalogFromEnv(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	t.Setenv("SHOPFILTER_CATALOG_SOURCE", "s3")
	t.Setenv("SHOPFILTER_S3_ENDPOINT", "minio:9000")
	t.Setenv("SHOPFILTER_S3_BUCKET", "shop")
	t.Setenv("SHOPFILTER_S3_USE_SSL", "false")
	t.Setenv("SHOPFILTER_S3_ACCESS_KEY", "ak")
	t.Setenv("SHOPFILTER_S3_SECRET_KEY", "sk")
	t.Setenv("SHOPFILTER_CATALOG_REFRESH_INTERVAL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s3 := cfg.Catalog.S3
	if s3.Endpoint != "minio:9000" || s3.Bucket != "shop" || s3.Key != "catalog/current.json" {
		t.Errorf("s3 = %+v", s3)
	}
	if s3.UseSSL == nil || *s3.UseSSL {
		t.Errorf("UseSSL = %v, want false", s3.UseSSL)
	}
	if s3.AccessKey != "ak" || s3.SecretKey != "sk" {
		t.Error("S3 credentials not loaded from env")
	}
	if cfg.Catalog.RefreshInterval.Std() != 5*time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.Catalog.RefreshInterval.Std())
	}
}
