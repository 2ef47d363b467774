package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func mustSave(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
}

// clearEnvOverrides blanks every env var Load consults so tests see only
// file contents.
func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "BRAVE_API_KEY", "TELEGRAM_BOT_TOKEN",
		"FATHOM_LISTEN", "FATHOM_POSTGRES_DSN", "FATHOM_REDIS_ADDR", "FATHOM_REDIS_PASSWORD",
		"FATHOM_REMOTE_BASE_URL", "FATHOM_REMOTE_API_KEY", "FATHOM_WEBHOOK_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnvOverrides(t)
	path := testPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if cfg.LogLevel != "info" || cfg.Listen != ":8080" || cfg.MaxConcurrent != 8 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("unexpected LLM defaults: %+v", cfg.LLM)
	}
	if cfg.Remote.AssistantID != "research" {
		t.Errorf("unexpected remote defaults: %+v", cfg.Remote)
	}
	// Load writes the defaults out so the file exists from now on.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Load did not create the config file: %v", err)
	}
}

func TestSaveReloadRoundTrip(t *testing.T) {
	clearEnvOverrides(t)
	path := testPath(t)

	original := &Config{
		DataDir:       "/tmp/fathom-test",
		LogLevel:      "debug",
		Listen:        ":9090",
		MaxConcurrent: 4,
		MaxToolRounds: 20,
		RetentionDays: 30,
	}
	original.LLM.Provider = "openai"
	original.LLM.BaseURL = "https://api.openai.com/v1"
	original.LLM.APIKey = "sk-rt-test-1"
	original.LLM.Model = "gpt-4o"
	original.LLM.MaxTokens = 3000
	original.LLM.Temperature = 0.2
	original.LLM.MaxContextTokens = 128000
	original.LLM.OutputReserve = 4096
	original.Remote.Enabled = true
	original.Remote.BaseURL = "https://agents.example.com"
	original.Remote.APIKey = "rk-remote-789"
	original.Remote.AssistantID = "research"
	original.Postgres.DSN = "postgres://fathom:pw@localhost:5432/fathom"
	original.Redis.Addr = "localhost:6379"
	original.Brave.APIKey = "bsa-test-key-77"
	original.Telegram.Token = "tg-test-token"
	original.Webhook.Secret = "hook-secret-000"

	if err := Save(path, original); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Save writes every field, so the JSON forms must match exactly.
	wantMap, err := ToMap(original)
	if err != nil {
		t.Fatal(err)
	}
	gotMap, err := ToMap(loaded)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gotMap, wantMap) {
		t.Errorf("round trip changed the config:\ngot  %#v\nwant %#v", gotMap, wantMap)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnvOverrides(t)
	path := testPath(t)

	cfg := &Config{LogLevel: "info"}
	cfg.LLM.APIKey = "sk-from-file"
	mustSave(t, path, cfg)

	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("FATHOM_POSTGRES_DSN", "postgres://env-dsn")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LLM.APIKey != "sk-from-env" {
		t.Errorf("expected env to override api key, got %q", loaded.LLM.APIKey)
	}
	if loaded.Postgres.DSN != "postgres://env-dsn" {
		t.Errorf("expected env to set postgres dsn, got %q", loaded.Postgres.DSN)
	}
}

func TestSaveAtomicWrite(t *testing.T) {
	path := testPath(t)

	if err := Save(path, &Config{LogLevel: "info"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after successful save")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("config file is not valid JSON: %v", err)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.json")

	if err := Save(path, &Config{LogLevel: "warn"}); err != nil {
		t.Fatalf("Save with missing parent dir: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file missing after Save: %v", err)
	}
}

func TestToMap(t *testing.T) {
	cfg := &Config{DataDir: "/srv/fathom", LogLevel: "debug"}
	cfg.LLM.Provider = "openai"
	cfg.LLM.MaxTokens = 2000

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	llm, ok := m["llm"].(map[string]any)
	if !ok {
		t.Fatalf("expected llm to be a map, got %T", m["llm"])
	}
	// JSON numbers come back as float64.
	if m["data_dir"] != "/srv/fathom" || llm["provider"] != "openai" || llm["max_tokens"] != float64(2000) {
		t.Errorf("unexpected map contents: %#v", m)
	}
}

func TestListValues(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.LLM.APIKey = "sk-live-key-9876"
	cfg.Webhook.Secret = "hook-9999"

	open, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues: %v", err)
	}
	if open["llm.api_key"] != "sk-live-key-9876" || open["log_level"] != "info" {
		t.Errorf("unmasked listing wrong: api_key=%v log_level=%v", open["llm.api_key"], open["log_level"])
	}

	masked, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues: %v", err)
	}
	if masked["llm.api_key"] != "***9876" || masked["webhook.secret"] != "***9999" {
		t.Errorf("masked listing wrong: api_key=%v secret=%v", masked["llm.api_key"], masked["webhook.secret"])
	}
	if masked["log_level"] != "info" {
		t.Errorf("non-secret value was touched: %v", masked["log_level"])
	}
}

func TestGetValue(t *testing.T) {
	path := testPath(t)

	cfg := &Config{LogLevel: "debug", MaxConcurrent: 8}
	cfg.LLM.Model = "gpt-4o"
	mustSave(t, path, cfg)

	tests := []struct {
		key     string
		want    any
		wantErr string
	}{
		{key: "log_level", want: "debug"},
		{key: "llm.model", want: "gpt-4o"},
		{key: "max_concurrent", want: float64(8)},
		{key: "nonexistent.key", wantErr: "unknown config key: nonexistent.key"},
	}
	for _, tt := range tests {
		got, err := GetValue(path, tt.key)
		if tt.wantErr != "" {
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("GetValue(%q) error = %v, want %q", tt.key, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("GetValue(%q): %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("GetValue(%q) = %v (%T), want %v", tt.key, got, got, tt.want)
		}
	}
}

func TestGetValueCreatesDefaults(t *testing.T) {
	clearEnvOverrides(t)
	path := testPath(t)

	// The file does not exist yet; GetValue goes through Load, which writes
	// the defaults first.
	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != "info" {
		t.Errorf("expected default log_level=info, got %v", v)
	}
}

func TestSetValue(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  any
	}{
		{name: "string", key: "log_level", value: "debug", want: "debug"},
		{name: "integer parses as number", key: "max_concurrent", value: "12", want: float64(12)},
		{name: "boolean", key: "dry_run", value: "true", want: true},
		{name: "float", key: "llm.temperature", value: "0.4", want: 0.4},
		{name: "nested key", key: "llm.model", value: "gpt-4o", want: "gpt-4o"},
		{name: "new nested key outside the struct", key: "custom.origin", value: "cli", want: "cli"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testPath(t)
			mustSave(t, path, &Config{LogLevel: "info"})

			if err := SetValue(path, tt.key, tt.value); err != nil {
				t.Fatalf("SetValue: %v", err)
			}
			got, err := GetValue(path, tt.key)
			if err != nil {
				t.Fatalf("GetValue: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestSetValuePreservesOthers(t *testing.T) {
	path := testPath(t)

	cfg := &Config{LogLevel: "info"}
	cfg.LLM.Provider = "openai"
	mustSave(t, path, cfg)

	if err := SetValue(path, "log_level", "debug"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, err := GetValue(path, "llm.provider")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != "openai" {
		t.Errorf("untouched key changed: got %v", v)
	}
}

func TestSetValueMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
