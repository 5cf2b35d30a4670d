package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/forge-recipe/pkg/authoring"
	"github.com/entrhq/forge-recipe/pkg/browser"
	"github.com/entrhq/forge-recipe/pkg/budget"
)

// Checkpoint modes for a run.
const (
	CheckpointModeTerminal = "terminal" // ask in the terminal
	CheckpointModeAuto     = "auto"     // approve only auto_approve_domains, NOT_GO otherwise
	CheckpointModeDeny     = "deny"     // answer NOT_GO to everything
)

// RecipeRef names the recipe version a run executes.
type RecipeRef struct {
	Dir    string `yaml:"dir" validate:"required"`
	Domain string `yaml:"domain" validate:"required"`
	Flow   string `yaml:"flow" validate:"required"`

	// Version pins a version such as v003. Empty runs the latest.
	Version string `yaml:"version"`
}

// BrowserSettings configure the playwright session.
type BrowserSettings struct {
	Show            bool    `yaml:"show"`
	TimeoutMS       float64 `yaml:"timeout_ms" default:"30000" validate:"gt=0"`
	ActionTimeoutMS float64 `yaml:"action_timeout_ms" default:"5000" validate:"gt=0"`
	WaitUntil       string  `yaml:"wait_until" default:"domcontentloaded" validate:"oneof=load domcontentloaded networkidle"`
	ViewportWidth   int     `yaml:"viewport_width" default:"1280" validate:"gt=0"`
	ViewportHeight  int     `yaml:"viewport_height" default:"720" validate:"gt=0"`
	MaxCandidates   int     `yaml:"max_candidates" default:"5" validate:"gt=0"`
	StorageState    string  `yaml:"storage_state"`
}

// SessionOptions converts the settings for browser.SessionManager.
func (b BrowserSettings) SessionOptions() browser.SessionOptions {
	return browser.SessionOptions{
		Headless:     !b.Show,
		Viewport:     &browser.Viewport{Width: b.ViewportWidth, Height: b.ViewportHeight},
		Timeout:      b.TimeoutMS,
		StorageState: b.StorageState,
	}
}

// EngineOptions converts the settings for browser.NewEngine.
func (b BrowserSettings) EngineOptions() browser.EngineOptions {
	return browser.EngineOptions{
		ActionTimeout: b.ActionTimeoutMS,
		WaitUntil:     b.WaitUntil,
		MaxCandidates: b.MaxCandidates,
	}
}

// AuthoringSettings enable the authoring_patch rung.
type AuthoringSettings struct {
	Enabled          bool `yaml:"enabled"`
	authoring.Config `yaml:",inline"`
}

// LLMSettings enable language model selector suggestions.
// The API key is only read from the environment or the config file.
type LLMSettings struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// RunCheckpoint picks the checkpoint gate for a run.
type RunCheckpoint struct {
	Mode               string `yaml:"mode" default:"terminal" validate:"oneof=terminal auto deny"`
	CheckpointSettings `yaml:",inline"`
}

// RunConfig describes one recipe run.
type RunConfig struct {
	Recipe     RecipeRef         `yaml:"recipe"`
	Browser    BrowserSettings   `yaml:"browser"`
	Budget     budget.Config     `yaml:"budget"`
	Healing    HealingSettings   `yaml:"healing"`
	Authoring  AuthoringSettings `yaml:"authoring"`
	LLM        LLMSettings       `yaml:"llm"`
	Checkpoint RunCheckpoint     `yaml:"checkpoint"`

	// ScreenshotDir enables failure and checkpoint screenshots.
	ScreenshotDir string `yaml:"screenshot_dir"`

	// ReportDir receives report.json and summary.md after the run.
	ReportDir string `yaml:"report_dir"`
}

// NewRunConfig returns a RunConfig filled from struct defaults and then from
// the persistent sections, when config has been initialized.
func NewRunConfig() (*RunConfig, error) {
	cfg := &RunConfig{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply default values: %w", err)
	}

	if s := GetBudget(); s != nil {
		cfg.Budget = s.Config()
	}
	if s := GetHealing(); s != nil {
		cfg.Healing = s.Settings()
	}
	if s := GetAuthoring(); s != nil {
		cfg.Authoring.Config = s.Config()
	}
	if s := GetLLM(); s != nil {
		cfg.LLM.Model = s.GetModel()
		cfg.LLM.BaseURL = s.GetBaseURL()
	}
	if s := GetCheckpoint(); s != nil {
		cfg.Checkpoint.CheckpointSettings = s.Settings()
	}
	return cfg, nil
}

// LoadRunConfig reads a YAML run file. ${VAR} references are expanded from
// the environment, relative paths resolve against the file's directory, and
// the result is validated.
func LoadRunConfig(path string) (*RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run config: %w", err)
	}

	cfg, err := NewRunConfig()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse run config: %w", err)
	}

	base := filepath.Dir(path)
	cfg.Recipe.Dir = resolvePath(base, cfg.Recipe.Dir)
	cfg.Healing.Path = resolvePath(base, cfg.Healing.Path)
	cfg.ScreenshotDir = resolvePath(base, cfg.ScreenshotDir)
	cfg.ReportDir = resolvePath(base, cfg.ReportDir)
	cfg.Browser.StorageState = resolvePath(base, cfg.Browser.StorageState)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field, the downgrade order and the checkpoint globs.
func (c *RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidation(err)
	}
	if err := c.Budget.Validate(); err != nil {
		return err
	}
	return c.Checkpoint.CheckpointSettings.Validate()
}

func formatValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := userHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(base, p)
}
