// Package config resolves vitalog settings from the YAML config file,
// environment variables, and CLI flags. Precedence is CLI > env > config
// file > built-in default, and every resolved value remembers which layer
// supplied it so `vitalog config` can show where a setting came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalog/vitalog/internal/clarify"
	"github.com/vitalog/vitalog/internal/classify"
	"github.com/vitalog/vitalog/internal/llm"
	"github.com/vitalog/vitalog/internal/pipeline"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a setting plus its provenance: the layer that supplied
// it and the concrete key, flag, or file it came from.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries the CLI-level overrides into resolution.
type ResolveOptions struct {
	ConfigPath string
	CLILLM     string
	CLIDBPath  string
	CLIUser    string
}

// ResolvedConfig is the full resolved settings set.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	UserID      ResolvedValue `json:"user_id"`
	LLMProvider ResolvedValue `json:"llm_provider"`
	LLMAPIKey   ResolvedValue `json:"llm_api_key,omitempty"`

	CommitFloor      ResolvedValue `json:"commit_floor"`
	ClarifyFloor     ResolvedValue `json:"clarify_floor"`
	ConfirmedCeiling ResolvedValue `json:"confirmed_ceiling"`
	SessionTTL       ResolvedValue `json:"session_ttl"`
	ClassifyTimeout  ResolvedValue `json:"classify_timeout"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	UserID string `yaml:"user_id"`
	LLM    struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`
	Gate struct {
		CommitFloor      string `yaml:"commit_floor"`
		ClarifyFloor     string `yaml:"clarify_floor"`
		ConfirmedCeiling string `yaml:"confirmed_ceiling"`
	} `yaml:"gate"`
	SessionTTL      string `yaml:"session_ttl"`
	ClassifyTimeout string `yaml:"classify_timeout"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vitalog", "config.yaml")
}

// ResolveConfig layers the config file, environment, and CLI overrides in
// precedence order. A missing config file is not an error; a malformed one
// is.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.UserID, cfg.UserID, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMAPIKey, cfg.LLM.APIKey, SourceConfig, path)
		apply(&out.CommitFloor, cfg.Gate.CommitFloor, SourceConfig, path)
		apply(&out.ClarifyFloor, cfg.Gate.ClarifyFloor, SourceConfig, path)
		apply(&out.ConfirmedCeiling, cfg.Gate.ConfirmedCeiling, SourceConfig, path)
		apply(&out.SessionTTL, cfg.SessionTTL, SourceConfig, path)
		apply(&out.ClassifyTimeout, cfg.ClassifyTimeout, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "VITALOG_DB")
	applyEnv(&out.DBPath, "VITALOG_DB_PATH")
	applyEnv(&out.UserID, "VITALOG_USER")
	applyEnv(&out.LLMProvider, "VITALOG_LLM")
	applyEnv(&out.LLMAPIKey, "VITALOG_LLM_API_KEY")
	applyEnv(&out.CommitFloor, "VITALOG_COMMIT_FLOOR")
	applyEnv(&out.ClarifyFloor, "VITALOG_CLARIFY_FLOOR")
	applyEnv(&out.ConfirmedCeiling, "VITALOG_CONFIRMED_CEILING")
	applyEnv(&out.SessionTTL, "VITALOG_SESSION_TTL")
	applyEnv(&out.ClassifyTimeout, "VITALOG_CLASSIFY_TIMEOUT")

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.UserID, opts.CLIUser, SourceCLI, "--user")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.UserID.Value == "" {
		out.UserID = ResolvedValue{Value: "default", Source: SourceDefault, From: "built-in default"}
	}

	return out, nil
}

// Thresholds converts the resolved gate settings into pipeline thresholds.
// Unset values take the built-in defaults; set values must parse and form a
// valid ordering.
func (r ResolvedConfig) Thresholds() (pipeline.Thresholds, error) {
	t := pipeline.DefaultThresholds()

	for _, f := range []struct {
		rv   ResolvedValue
		dst  *float64
		name string
	}{
		{r.CommitFloor, &t.CommitFloor, "commit_floor"},
		{r.ClarifyFloor, &t.ClarifyFloor, "clarify_floor"},
		{r.ConfirmedCeiling, &t.ConfirmedCeiling, "confirmed_ceiling"},
	} {
		if strings.TrimSpace(f.rv.Value) == "" {
			continue
		}
		v, err := strconv.ParseFloat(f.rv.Value, 64)
		if err != nil {
			return t, fmt.Errorf("parsing %s %q (from %s): %w", f.name, f.rv.Value, f.rv.From, err)
		}
		*f.dst = v
	}

	if !t.Valid() {
		return t, fmt.Errorf("invalid gate thresholds: need 0 <= clarify_floor < commit_floor <= confirmed_ceiling <= 1, got %.2f/%.2f/%.2f",
			t.ClarifyFloor, t.CommitFloor, t.ConfirmedCeiling)
	}
	return t, nil
}

// LLMConfig converts the resolved provider setting into an llm.Config.
// An unset provider takes the built-in default; the config-file API key
// rides along when present (env keys are read by llm.NewProvider itself).
func (r ResolvedConfig) LLMConfig() (llm.Config, error) {
	cfg, err := llm.ParseLLMFlag(r.LLMProvider.Value)
	if err != nil {
		return llm.Config{}, fmt.Errorf("resolving llm provider (from %s): %w", r.LLMProvider.From, err)
	}
	if key := strings.TrimSpace(r.LLMAPIKey.Value); key != "" {
		cfg.APIKey = key
	}
	return cfg, nil
}

// SessionIdleTTL parses the resolved session TTL, falling back to the
// clarify default when unset.
func (r ResolvedConfig) SessionIdleTTL() (time.Duration, error) {
	v := strings.TrimSpace(r.SessionTTL.Value)
	if v == "" {
		return clarify.DefaultIdleTTL, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing session_ttl %q (from %s): %w", v, r.SessionTTL.From, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("session_ttl must be positive, got %s", d)
	}
	return d, nil
}

// ClassifierTimeout parses the resolved per-call classifier budget,
// falling back to the classify default when unset.
func (r ResolvedConfig) ClassifierTimeout() (time.Duration, error) {
	v := strings.TrimSpace(r.ClassifyTimeout.Value)
	if v == "" {
		return classify.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing classify_timeout %q (from %s): %w", v, r.ClassifyTimeout.From, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("classify_timeout must be positive, got %s", d)
	}
	return d, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
