package scribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
)

// Lock record backends.
const (
	LockBackendSQLite = "sqlite"
	LockBackendFiles  = "files"
)

// Assistant providers.
const (
	ProviderLorem     = "lorem"
	ProviderAnthropic = "anthropic"
)

// ConfigFileName is the project config file looked up in the work directory.
const ConfigFileName = ".scribe.json"

// EnvFileName is the dotenv file read from the work directory.
const EnvFileName = ".env"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DataDir            string   `json:"data_dir"`
	LockBackend        string   `json:"lock_backend"`
	LockWaitRetries    int      `json:"lock_wait_retries"`
	LockWaitIntervalMS int      `json:"lock_wait_interval_ms"`
	Editor             string   `json:"editor,omitempty"`
	LogLevel           string   `json:"log_level"`
	AI                 AIConfig `json:"ai"`

	// Resolved (computed, not serialized)
	EffectiveCwd string            `json:"-"`
	DataDirAbs   string            `json:"-"`
	Env          map[string]string `json:"-"` // process env layered over .env
	Sources      ConfigSources     `json:"-"`
}

// AIConfig configures the assistant provider.
type AIConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string
	Project string
	DotEnv  string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DataDir:            ".scribe",
		LockBackend:        LockBackendSQLite,
		LockWaitRetries:    10,
		LockWaitIntervalMS: 100,
		LogLevel:           "warn",
		AI: AIConfig{
			Provider:  ProviderLorem,
			Model:     "claude-sonnet-4-5",
			MaxTokens: 2048,
		},
	}
}

// LockWaitInterval returns the pause between lock polls.
func (c Config) LockWaitInterval() time.Duration {
	return time.Duration(c.LockWaitIntervalMS) * time.Millisecond
}

// SlogLevel maps log_level onto a [slog.Level]. Unknown values fall back to warn.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level

	err := lvl.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return slog.LevelWarn
	}

	return lvl
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DataDirOverride string            // --data-dir flag value; empty means no override
	Env             map[string]string // process environment
}

// fileConfig mirrors Config with pointers so explicit zero values in a file
// can be told apart from absent keys.
type fileConfig struct {
	DataDir            *string `json:"data_dir"`
	LockBackend        *string `json:"lock_backend"`
	LockWaitRetries    *int    `json:"lock_wait_retries"`
	LockWaitIntervalMS *int    `json:"lock_wait_interval_ms"`
	Editor             *string `json:"editor"`
	LogLevel           *string `json:"log_level"`
	AI                 *struct {
		Provider  *string `json:"provider"`
		Model     *string `json:"model"`
		MaxTokens *int    `json:"max_tokens"`
	} `json:"ai"`
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/scribe/config.json or ~/.config/scribe/config.json)
// 3. Project config file (.scribe.json in the work directory, if it exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. CLI overrides.
//
// The .env file in the work directory is merged under the process
// environment and exposed as Config.Env.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg := DefaultConfig()

	env, dotEnvPath, err := loadEnv(workDir, input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Env = env
	cfg.Sources.DotEnv = dotEnvPath

	globalPath := globalConfigPath(env)
	if globalPath != "" {
		loaded, err := loadConfigFile(&cfg, globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = globalPath
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	loaded, err := loadConfigFile(&cfg, projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
	}

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	err = validateConfig(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DataDir) {
		cfg.DataDirAbs = filepath.Clean(cfg.DataDir)
	} else {
		cfg.DataDirAbs = filepath.Join(workDir, cfg.DataDir)
	}

	return cfg, nil
}

// globalConfigPath returns $XDG_CONFIG_HOME/scribe/config.json, falling back
// to ~/.config/scribe/config.json. Empty when neither is known.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "scribe", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "scribe", "config.json")
	}

	return ""
}

func loadEnv(workDir string, procEnv map[string]string) (map[string]string, string, error) {
	env := make(map[string]string, len(procEnv))
	path := filepath.Join(workDir, EnvFileName)

	fileEnv, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}

	if err != nil {
		path = ""
	}

	maps.Copy(env, fileEnv)
	maps.Copy(env, procEnv)

	return env, path, nil
}

// loadConfigFile overlays the file at path onto cfg. Missing files are
// skipped unless mustExist is set.
func loadConfigFile(cfg *Config, path string, mustExist bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mustExist {
				return false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return false, nil
		}

		return false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	fc, err := parseConfig(data)
	if err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if fc.DataDir != nil && *fc.DataDir == "" {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrDataDirEmpty)
	}

	mergeConfig(cfg, fc)

	return true, nil
}

func parseConfig(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig

	err = json.Unmarshal(standardized, &fc)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return fc, nil
}

func mergeConfig(cfg *Config, fc fileConfig) {
	setIf(&cfg.DataDir, fc.DataDir)
	setIf(&cfg.LockBackend, fc.LockBackend)
	setIf(&cfg.LockWaitRetries, fc.LockWaitRetries)
	setIf(&cfg.LockWaitIntervalMS, fc.LockWaitIntervalMS)
	setIf(&cfg.Editor, fc.Editor)
	setIf(&cfg.LogLevel, fc.LogLevel)

	if fc.AI != nil {
		setIf(&cfg.AI.Provider, fc.AI.Provider)
		setIf(&cfg.AI.Model, fc.AI.Model)
		setIf(&cfg.AI.MaxTokens, fc.AI.MaxTokens)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return ErrDataDirEmpty
	}

	err := validation.ValidateStruct(&cfg,
		validation.Field(&cfg.LockBackend, validation.Required, validation.In(LockBackendSQLite, LockBackendFiles)),
		validation.Field(&cfg.LockWaitRetries, validation.Min(0), validation.Max(10000)),
		validation.Field(&cfg.LockWaitIntervalMS, validation.Min(0), validation.Max(60000)),
		validation.Field(&cfg.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	err = validation.ValidateStruct(&cfg.AI,
		validation.Field(&cfg.AI.Provider, validation.Required, validation.In(ProviderLorem, ProviderAnthropic)),
		validation.Field(&cfg.AI.MaxTokens, validation.Min(1), validation.Max(64000)),
	)
	if err != nil {
		return fmt.Errorf("%w: ai: %w", ErrConfigInvalid, err)
	}

	return nil
}

// FormatConfig renders the effective configuration as key=value lines.
func FormatConfig(cfg Config) []string {
	lines := []string{
		"effective_cwd=" + cfg.EffectiveCwd,
		"data_dir=" + cfg.DataDirAbs,
		"lock_backend=" + cfg.LockBackend,
		fmt.Sprintf("lock_wait_retries=%d", cfg.LockWaitRetries),
		fmt.Sprintf("lock_wait_interval_ms=%d", cfg.LockWaitIntervalMS),
		"log_level=" + cfg.LogLevel,
		"ai.provider=" + cfg.AI.Provider,
		"ai.model=" + cfg.AI.Model,
		fmt.Sprintf("ai.max_tokens=%d", cfg.AI.MaxTokens),
	}

	if cfg.Editor != "" {
		lines = append(lines, "editor="+cfg.Editor)
	}

	return lines
}
