package config

import (
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]any
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m *mapBackend) SetString(key, val string) error { m.data[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }
func (m *mapBackend) Delete(key string) error          { delete(m.data, key); return nil }

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func TestDefaults(t *testing.T) {
	t.Setenv("ENGRAM_API_TOKEN", "test-token")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.ChatModel != "mistral-nemo" {
		t.Errorf("Ollama.ChatModel = %q", cfg.Ollama.ChatModel)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("Ollama.EmbedModel = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want 5", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MaxContextTokens != 4000 {
		t.Errorf("Retrieval.MaxContextTokens = %d, want 4000", cfg.Retrieval.MaxContextTokens)
	}
	if cfg.Repair.Interval != "30s" {
		t.Errorf("Repair.Interval = %q, want 30s", cfg.Repair.Interval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendValues(t *testing.T) {
	t.Setenv("ENGRAM_API_TOKEN", "test-token")

	b := &mapBackend{data: map[string]any{
		"server.port":        5600,
		"ollama.base_url":    "http://custom:11434",
		"ollama.chat_model":  "custom-chat",
		"ollama.embed_model": "custom-embed",
		"storage.data_dir":   "/tmp/engram-test",
		"retrieval.top_k":    9,
		"repair.interval":    "1m",
	}}

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5600 {
		t.Errorf("Server.Port = %d, want 5600", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://custom:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.ChatModel != "custom-chat" {
		t.Errorf("Ollama.ChatModel = %q", cfg.Ollama.ChatModel)
	}
	if cfg.Storage.DataDir != "/tmp/engram-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Retrieval.TopK != 9 {
		t.Errorf("Retrieval.TopK = %d, want 9", cfg.Retrieval.TopK)
	}
	if cfg.Repair.Interval != "1m" {
		t.Errorf("Repair.Interval = %q, want 1m", cfg.Repair.Interval)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ENGRAM_API_TOKEN", "test-token")
	t.Setenv("ENGRAM_SERVER_PORT", "7000")
	t.Setenv("ENGRAM_OLLAMA_EMBED_MODEL", "env-embed")

	b := &mapBackend{data: map[string]any{
		"server.port":        5600,
		"ollama.embed_model": "backend-embed",
	}}

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want env override 7000", cfg.Server.Port)
	}
	if cfg.Ollama.EmbedModel != "env-embed" {
		t.Errorf("Ollama.EmbedModel = %q, want env override", cfg.Ollama.EmbedModel)
	}
}

func TestMissingAPIToken(t *testing.T) {
	t.Setenv("ENGRAM_API_TOKEN", "")

	_, err := loadWith(&mapBackend{data: map[string]any{}}, mockKeychain{})
	if err == nil {
		t.Fatal("expected error for missing API token, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err)
	}
}

func TestKeychainFallback(t *testing.T) {
	t.Setenv("ENGRAM_API_TOKEN", "")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}}, mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.Token != "keychain-secret" {
		t.Errorf("API.Token = %q, want keychain-secret", cfg.API.Token)
	}
}

func TestSetKeyUnknownAndSecret(t *testing.T) {
	err := SetKey("no.such.key", "v")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "server.port") {
		t.Errorf("unknown-key error should list valid keys, got %q", err)
	}

	err = SetKey("api.token", "v")
	if err == nil {
		t.Fatal("expected error when setting a secret key")
	}
	if !strings.Contains(err.Error(), "ENGRAM_API_TOKEN") {
		t.Errorf("secret error should point at the env var, got %q", err)
	}
}

func TestShowAllSkipsSecrets(t *testing.T) {
	for _, info := range ShowAll(defaults()) {
		if info.Key == "api.token" {
			t.Error("ShowAll leaked the api token key")
		}
	}
}
