package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"VOUCHVAULT_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY",
		"VOUCHVAULT_PROVIDER", "VOUCHVAULT_BASE_URL", "VOUCHVAULT_MODEL", "VOUCHVAULT_VISION_MODEL",
		"VOUCHVAULT_MAX_ATTEMPTS", "VOUCHVAULT_TAX_RATE", "VOUCHVAULT_CYCLE_PAUSE",
		"VOUCHVAULT_EMBEDDING_BASE_URL", "VOUCHVAULT_EMBEDDING_API_KEY",
		"VOUCHVAULT_VECTOR_BACKEND", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_API_KEY",
		"VOUCHVAULT_EVIDENCE_DB", "VOUCHVAULT_DATA_DIR", "VOUCHVAULT_CONFIG",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("VOUCHVAULT_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Agent.Model, DefaultModel)
	}
	if cfg.Agent.Workspace != filepath.Join(ConfigDir(), "workspace") {
		t.Errorf("workspace = %q", cfg.Agent.Workspace)
	}
	if cfg.Audit.MaxAttempts != 3 {
		t.Errorf("maxAttempts = %d, want 3", cfg.Audit.MaxAttempts)
	}
	if cfg.Audit.TaxRate != 0.18 {
		t.Errorf("taxRate = %v, want 0.18", cfg.Audit.TaxRate)
	}
	if cfg.Embedding.Text.Dimension != 384 {
		t.Errorf("text dimension = %d, want 384", cfg.Embedding.Text.Dimension)
	}
	if cfg.Embedding.Image.Dimension != 512 {
		t.Errorf("image dimension = %d, want 512", cfg.Embedding.Image.Dimension)
	}
	if cfg.VectorStore.Collection != "civic_audit_evidence" {
		t.Errorf("collection = %q", cfg.VectorStore.Collection)
	}
	if cfg.ContractsDir() != filepath.Join("data", "contracts") {
		t.Errorf("contracts dir = %q", cfg.ContractsDir())
	}
	if cfg.PhotosDir() != filepath.Join("data", "site_photos") {
		t.Errorf("photos dir = %q", cfg.PhotosDir())
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Agent.Model)
	}
	if cfg.Agent.VisionModel != DefaultModel {
		t.Errorf("vision model should default to agent model, got %q", cfg.Agent.VisionModel)
	}
	if cfg.Provider.APIKey != "" {
		t.Errorf("expected empty api key, got %q", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_FromJSONFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfgDir := filepath.Join(tmpDir, ".vouchvault")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(map[string]any{
		"provider": map[string]any{"apiKey": "file-key", "type": "openai"},
		"audit":    map[string]any{"maxAttempts": 5, "taxRate": 0.2, "cyclePause": "0s"},
		"vectorStore": map[string]any{
			"backend": "sqlite",
		},
	})
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "file-key" {
		t.Errorf("apiKey = %q", cfg.Provider.APIKey)
	}
	if cfg.Audit.MaxAttempts != 5 {
		t.Errorf("maxAttempts = %d", cfg.Audit.MaxAttempts)
	}
	if cfg.CyclePauseDuration() != 0 {
		t.Errorf("cyclePause = %v", cfg.CyclePauseDuration())
	}
	if cfg.VectorStore.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.VectorStore.Backend)
	}
	// Unset sections keep defaults.
	if cfg.VectorStore.Collection != DefaultCollection {
		t.Errorf("collection = %q", cfg.VectorStore.Collection)
	}
}

func TestLoadConfig_FromYAMLFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "vouchvault.yaml")
	yamlDoc := "agent:\n  model: gpt-4o\nprovider:\n  type: openai\ningest:\n  dataDir: /srv/evidence\n  chunkSize: 200\n  chunkOverlap: 20\n"
	if err := os.WriteFile(path, []byte(yamlDoc), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOUCHVAULT_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.Agent.Model)
	}
	if cfg.Ingest.DataDir != "/srv/evidence" || cfg.Ingest.ChunkSize != 200 || cfg.Ingest.ChunkOverlap != 20 {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfgDir := filepath.Join(tmpDir, ".vouchvault")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{not json"), 0644)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("VOUCHVAULT_API_KEY", "env-key")
	t.Setenv("VOUCHVAULT_MAX_ATTEMPTS", "2")
	t.Setenv("VOUCHVAULT_TAX_RATE", "0.05")
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("VOUCHVAULT_VECTOR_BACKEND", "sqlite")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("apiKey = %q", cfg.Provider.APIKey)
	}
	if cfg.Audit.MaxAttempts != 2 || cfg.Audit.TaxRate != 0.05 {
		t.Errorf("audit = %+v", cfg.Audit)
	}
	if cfg.VectorStore.Host != "qdrant.internal" || cfg.VectorStore.Port != 7000 || cfg.VectorStore.Backend != "sqlite" {
		t.Errorf("vectorStore = %+v", cfg.VectorStore)
	}
}

func TestLoadConfig_OpenAIKeySetsProvider(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.Type != "openai" {
		t.Errorf("provider type = %q, want openai", cfg.Provider.Type)
	}
}

func TestLoadConfig_GoogleKeyUsesGeminiEndpoint(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.Type != "openai" {
		t.Errorf("provider type = %q", cfg.Provider.Type)
	}
	if cfg.Provider.BaseURL != geminiOpenAIBaseURL {
		t.Errorf("baseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Agent.Model != DefaultGeminiModel {
		t.Errorf("model = %q", cfg.Agent.Model)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	envFile := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envFile, []byte("VOUCHVAULT_MODEL=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOUCHVAULT_ENV_FILE", envFile)
	// godotenv sets variables directly; restore afterwards.
	t.Cleanup(func() { os.Unsetenv("VOUCHVAULT_MODEL") })
	os.Unsetenv("VOUCHVAULT_MODEL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != "from-dotenv" {
		t.Errorf("model = %q, want from-dotenv", cfg.Agent.Model)
	}
}

func TestCyclePauseDuration_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.CyclePause = "soon"
	if got := cfg.CyclePauseDuration(); got != time.Second {
		t.Errorf("pause = %v, want 1s", got)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "saved-key"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Provider.APIKey != "saved-key" {
		t.Errorf("apiKey = %q", loaded.Provider.APIKey)
	}
}
