package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/forge-recipe/pkg/authoring"
	"github.com/entrhq/forge-recipe/pkg/browser"
	"github.com/entrhq/forge-recipe/pkg/budget"
	"github.com/entrhq/forge-recipe/pkg/checkpoint"
	"github.com/entrhq/forge-recipe/pkg/config"
	"github.com/entrhq/forge-recipe/pkg/healing"
	"github.com/entrhq/forge-recipe/pkg/llm"
	"github.com/entrhq/forge-recipe/pkg/logging"
	"github.com/entrhq/forge-recipe/pkg/patch"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/runner"
	"github.com/entrhq/forge-recipe/pkg/types"
)

const sessionName = "recipe"

var (
	runShow         bool
	runAPIKey       string
	runAuthoringURL string
)

var runCmd = &cobra.Command{
	Use:   "run <run-config.yaml>",
	Short: "Run a recipe in a browser, recovering failed steps",
	Long: `Run loads a YAML run file, starts Chromium through Playwright and executes
the recipe. Failed steps walk their fallback ladder; successful repairs are
remembered in healing memory and authoring patches are saved as new versions.

Environment:
  OPENAI_API_KEY       API key for LLM selector suggestions (llm.enabled)
  OPENAI_BASE_URL      OpenAI-compatible endpoint
  FORGE_AUTHORING_URL  Authoring service base URL (authoring.enabled)

Example run file:
  recipe:
    dir: ./recipes
    domain: shop.example.com
    flow: checkout
  budget:
    max_llm_calls_per_run: 4
  authoring:
    enabled: true
  checkpoint:
    mode: terminal
`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runShow, "show", false, "Show the browser window")
	runCmd.Flags().StringVar(&runAPIKey, "api-key", "", "LLM API key (overrides OPENAI_API_KEY)")
	runCmd.Flags().StringVar(&runAuthoringURL, "authoring-url", "", "Authoring service base URL (overrides FORGE_AUTHORING_URL)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadRunConfig(args[0])
	if err != nil {
		return err
	}
	if runShow {
		cfg.Browser.Show = true
	}

	store := recipe.NewStore(cfg.Recipe.Dir)
	rec, err := loadRecipe(store, cfg.Recipe.Domain, cfg.Recipe.Flow, cfg.Recipe.Version)
	if err != nil {
		return err
	}

	logger, closeLog := runLogger()
	defer closeLog()
	opts, err := runnerOptions(cmd, cfg, store, logger)
	if err != nil {
		return err
	}

	sessions := browser.NewSessionManager()
	if err := sessions.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := sessions.Shutdown(); err != nil {
			slog.Warn("failed to shut down browser", "error", err)
		}
	}()
	session, err := sessions.StartSession(sessionName, cfg.Browser.SessionOptions())
	if err != nil {
		return err
	}
	engine := browser.NewEngine(session, cfg.Browser.EngineOptions())

	logger.Infof("running %s", rec)
	r := runner.New(engine, budget.NewGuard(cfg.Budget), opts...)
	start := time.Now()
	result, runErr := r.Run(ctx, rec)
	printSummary(cmd.OutOrStdout(), rec, result, runErr)

	if cfg.ReportDir != "" {
		report := runner.NewReport(rec, result, runErr, start, time.Now())
		if err := runner.WriteReport(cfg.ReportDir, report); err != nil {
			logger.Errorf("failed to write run report: %v", err)
		}
	}
	return runErr
}

// runLogger writes to the session log file and, at -v, the console.
func runLogger() (logging.Logger, func()) {
	console := logging.SlogAdapter{Logger: slog.Default()}
	file, err := logging.NewLogger("runner")
	if err != nil {
		slog.Debug("file logging unavailable", "error", err)
		return console, func() {}
	}
	slog.Debug("writing run log", "path", file.LogPath())
	return logging.Tee{file, console}, func() { _ = file.Close() }
}

// runnerOptions wires every optional collaborator the run file enables.
func runnerOptions(cmd *cobra.Command, cfg *config.RunConfig, store *recipe.Store, logger logging.Logger) ([]runner.Option, error) {
	gate, err := runGate(cmd, cfg.Checkpoint)
	if err != nil {
		return nil, err
	}

	healingPath, err := cfg.Healing.StorePath()
	if err != nil {
		return nil, err
	}

	opts := []runner.Option{
		runner.WithHealingMemory(healing.New(healingPath), cfg.Healing.MinConfidence),
		runner.WithLogger(logger),
		runner.WithEventEmitter(logEvent),
		runner.WithScreenshotDir(cfg.ScreenshotDir),
	}
	if gate != nil {
		opts = append(opts, runner.WithCheckpointGate(gate))
	}

	if cfg.Authoring.Enabled {
		authCfg := cfg.Authoring.Config
		if u := firstNonEmpty(runAuthoringURL, os.Getenv("FORGE_AUTHORING_URL")); u != "" {
			authCfg.BaseURL = u
		}
		opts = append(opts, runner.WithPatchWorkflow(authoring.NewClient(authCfg), patch.NewWorkflow(store, gate)))
	}

	if cfg.LLM.Enabled {
		provider, err := config.BuildProvider(cfg.LLM.Model, cfg.LLM.BaseURL, runAPIKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, runner.WithLocator(llm.NewLocator(provider)))
	}

	return opts, nil
}

// runGate builds the checkpoint gate for the run's mode. Deny returns nil,
// which the runner and patch workflow treat as NOT_GO.
func runGate(cmd *cobra.Command, cp config.RunCheckpoint) (checkpoint.Gate, error) {
	switch cp.Mode {
	case config.CheckpointModeDeny:
		return nil, nil
	case config.CheckpointModeAuto:
		return checkpoint.NewAutoApprover(cp.AutoApproveDomains, nil)
	}
	terminal := checkpoint.NewTerminalGate(cmd.InOrStdin(), cmd.OutOrStdout(), cp.ApprovalTimeout)
	return checkpoint.NewAutoApprover(cp.AutoApproveDomains, terminal)
}

func logEvent(event *types.RecoveryEvent) {
	attrs := []any{"step", event.StepID}
	if event.ErrorKind != "" {
		attrs = append(attrs, "kind", event.ErrorKind)
	}
	if event.Action != "" {
		attrs = append(attrs, "action", event.Action)
	}
	if event.Message != "" {
		attrs = append(attrs, "message", event.Message)
	}
	if event.Error != nil {
		attrs = append(attrs, "error", event.Error)
	}

	switch event.Type {
	case types.EventTypeStepFailed, types.EventTypeRungFailed, types.EventTypeRunAborted:
		slog.Warn(string(event.Type), attrs...)
	case types.EventTypeRungSucceeded, types.EventTypePatchApplied, types.EventTypeDowngrade,
		types.EventTypeApprovalGranted, types.EventTypeApprovalRejected, types.EventTypeApprovalTimeout:
		slog.Info(string(event.Type), attrs...)
	default:
		slog.Debug(string(event.Type), attrs...)
	}
}

func printSummary(w io.Writer, started *recipe.Recipe, result runner.Result, runErr error) {
	var b strings.Builder

	status := goodStyle.Render("completed")
	if runErr != nil {
		status = badStyle.Render("failed")
		if errors.Is(runErr, runner.ErrAborted) {
			status = badStyle.Render("aborted")
		}
	}
	fmt.Fprintf(&b, "%s %s\n", headingStyle.Render(started.String()), status)

	if result.Recipe != nil && result.Recipe.Version != started.Version {
		fmt.Fprintf(&b, "%s %s\n", keyStyle.Render("patched to:"), result.Recipe.Version)
	}
	fmt.Fprintf(&b, "%s %d (%d recovered)\n", keyStyle.Render("steps:"), len(result.Steps), result.Recovered())
	for _, s := range result.Steps {
		if s.Outcome == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s %s via %s\n", s.StepID, s.Outcome.Status, s.Outcome.Action)
	}
	u := result.Usage
	fmt.Fprintf(&b, "%s llm %d, authoring %d, prompt chars %d, screenshots %d\n",
		keyStyle.Render("usage:"), u.LLMCalls, u.AuthoringCalls, u.PromptChars, u.Screenshots)

	keys := make([]string, 0, len(result.Extracted))
	for key := range result.Extracted {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "%s %s\n", keyStyle.Render(key+":"), result.Extracted[key])
	}
	if runErr != nil {
		fmt.Fprintf(&b, "%s %v", keyStyle.Render("error:"), runErr)
	}

	fmt.Fprintln(w, summaryBox.Render(strings.TrimRight(b.String(), "\n")))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
