package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitalog/vitalog/internal/clarify"
	"github.com/vitalog/vitalog/internal/classify"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestResolveConfig_Precedence_ConfigEnvCLI(t *testing.T) {
	path := writeConfig(t, `db_path: ~/.vitalog/from-config.db
user_id: alex
llm:
  provider: google/gemini-2.5-flash
gate:
  commit_floor: "0.85"
`)

	t.Setenv("VITALOG_DB", "~/from-env.db")
	t.Setenv("VITALOG_LLM", "openrouter/openai/gpt-4o-mini")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: path,
		CLILLM:     "google/gemini-2.0-flash",
		CLIDBPath:  "~/from-cli.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.DBPath.Source != SourceCLI {
		t.Fatalf("expected DB path source cli, got %s", resolved.DBPath.Source)
	}
	if resolved.LLMProvider.Source != SourceCLI {
		t.Fatalf("expected llm provider source cli, got %s", resolved.LLMProvider.Source)
	}
	if resolved.UserID.Value != "alex" || resolved.UserID.Source != SourceConfig {
		t.Fatalf("expected user from config, got %+v", resolved.UserID)
	}
	if resolved.CommitFloor.Value != "0.85" || resolved.CommitFloor.Source != SourceConfig {
		t.Fatalf("expected commit floor from config, got %+v", resolved.CommitFloor)
	}
}

func TestResolveConfig_MissingFileIsNotAnError(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.DBPath.Value != "" {
		t.Fatalf("expected empty db path, got %q", resolved.DBPath.Value)
	}
	if resolved.UserID.Value != "default" || resolved.UserID.Source != SourceDefault {
		t.Fatalf("expected default user, got %+v", resolved.UserID)
	}
}

func TestResolveConfig_MalformedFile(t *testing.T) {
	path := writeConfig(t, "gate: [not a map")
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: path}); err == nil {
		t.Fatal("expected parse error for malformed config")
	}
}

func TestThresholds_DefaultsAndOverrides(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	th, err := resolved.Thresholds()
	if err != nil {
		t.Fatalf("Thresholds: %v", err)
	}
	if th.CommitFloor != 0.80 || th.ClarifyFloor != 0.50 {
		t.Fatalf("expected built-in defaults, got %+v", th)
	}

	t.Setenv("VITALOG_COMMIT_FLOOR", "0.90")
	resolved, err = ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	th, err = resolved.Thresholds()
	if err != nil {
		t.Fatalf("Thresholds: %v", err)
	}
	if th.CommitFloor != 0.90 {
		t.Fatalf("expected env override 0.90, got %v", th.CommitFloor)
	}
	if th.ClarifyFloor != 0.50 {
		t.Fatalf("clarify floor should keep its default, got %v", th.ClarifyFloor)
	}
}

func TestThresholds_RejectsInvalidOrdering(t *testing.T) {
	path := writeConfig(t, `gate:
  commit_floor: "0.40"
  clarify_floor: "0.60"
`)
	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if _, err := resolved.Thresholds(); err == nil {
		t.Fatal("expected error for clarify floor above commit floor")
	}
}

func TestThresholds_RejectsGarbage(t *testing.T) {
	t.Setenv("VITALOG_COMMIT_FLOOR", "very high")
	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if _, err := resolved.Thresholds(); err == nil {
		t.Fatal("expected parse error for non-numeric commit floor")
	}
}

func TestLLMConfig(t *testing.T) {
	resolved := ResolvedConfig{}
	cfg, err := resolved.LLMConfig()
	if err != nil {
		t.Fatalf("LLMConfig: %v", err)
	}
	if cfg.Provider != "google" {
		t.Fatalf("default provider = %q, want google", cfg.Provider)
	}

	resolved.LLMProvider = ResolvedValue{Value: "openrouter/openai/gpt-4o-mini", Source: SourceCLI, From: "--llm"}
	resolved.LLMAPIKey = ResolvedValue{Value: "file-key", Source: SourceConfig, From: "config.yaml"}
	cfg, err = resolved.LLMConfig()
	if err != nil {
		t.Fatalf("LLMConfig: %v", err)
	}
	if cfg.Provider != "openrouter" || cfg.Model != "openai/gpt-4o-mini" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.APIKey != "file-key" {
		t.Fatalf("api key = %q", cfg.APIKey)
	}

	resolved.LLMProvider.Value = "no-slash-model-name"
	if _, err := resolved.LLMConfig(); err == nil {
		t.Fatal("expected error for provider without model")
	}
}

func TestSessionIdleTTL(t *testing.T) {
	resolved := ResolvedConfig{}
	d, err := resolved.SessionIdleTTL()
	if err != nil {
		t.Fatalf("SessionIdleTTL: %v", err)
	}
	if d != clarify.DefaultIdleTTL {
		t.Fatalf("expected default TTL, got %s", d)
	}

	resolved.SessionTTL = ResolvedValue{Value: "30m", Source: SourceEnv, From: "VITALOG_SESSION_TTL"}
	d, err = resolved.SessionIdleTTL()
	if err != nil {
		t.Fatalf("SessionIdleTTL: %v", err)
	}
	if d != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", d)
	}

	resolved.SessionTTL.Value = "-5m"
	if _, err := resolved.SessionIdleTTL(); err == nil {
		t.Fatal("expected error for negative TTL")
	}
}

func TestClassifierTimeout(t *testing.T) {
	resolved := ResolvedConfig{}
	d, err := resolved.ClassifierTimeout()
	if err != nil {
		t.Fatalf("ClassifierTimeout: %v", err)
	}
	if d != classify.DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", d)
	}

	resolved.ClassifyTimeout = ResolvedValue{Value: "3s", Source: SourceEnv, From: "VITALOG_CLASSIFY_TIMEOUT"}
	d, err = resolved.ClassifierTimeout()
	if err != nil {
		t.Fatalf("ClassifierTimeout: %v", err)
	}
	if d != 3*time.Second {
		t.Fatalf("expected 3s, got %s", d)
	}

	resolved.ClassifyTimeout.Value = "soon"
	if _, err := resolved.ClassifierTimeout(); err == nil {
		t.Fatal("expected parse error for non-duration timeout")
	}
}
