package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/forge-recipe/pkg/budget"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// Run statuses recorded in a Report.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusFailed    = "failed"
)

// StepReport is the serializable form of a StepResult.
type StepReport struct {
	StepID   string                 `json:"step_id"`
	Status   OutcomeStatus          `json:"status,omitempty"`
	Kind     types.ErrorKind        `json:"error_kind,omitempty"`
	Action   types.RecoveryAction   `json:"action,omitempty"`
	Attempts []types.RecoveryAction `json:"attempts,omitempty"`
	Binding  *types.ActionRef       `json:"binding,omitempty"`
}

// Report summarizes one run for the artifacts directory.
type Report struct {
	Recipe       string            `json:"recipe"`
	FinalVersion string            `json:"final_version"`
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Duration     time.Duration     `json:"duration"`
	Steps        []StepReport      `json:"steps"`
	Recovered    int               `json:"recovered"`
	Extracted    map[string]string `json:"extracted,omitempty"`
	Usage        budget.Usage      `json:"usage"`
}

// NewReport builds a Report from a finished run of started.
func NewReport(started *recipe.Recipe, result Result, runErr error, start, end time.Time) *Report {
	rep := &Report{
		Recipe:    started.String(),
		Status:    StatusCompleted,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Recovered: result.Recovered(),
		Extracted: result.Extracted,
		Usage:     result.Usage,
		Steps:     make([]StepReport, 0, len(result.Steps)),
	}
	rep.FinalVersion = started.Version
	if result.Recipe != nil {
		rep.FinalVersion = result.Recipe.Version
	}
	if runErr != nil {
		rep.Error = runErr.Error()
		rep.Status = StatusFailed
		if errors.Is(runErr, ErrAborted) {
			rep.Status = StatusAborted
		}
	}

	for _, s := range result.Steps {
		sr := StepReport{StepID: s.StepID}
		if o := s.Outcome; o != nil {
			sr.Status = o.Status
			sr.Kind = o.Plan.Context.ErrorKind
			sr.Action = o.Action
			sr.Attempts = o.Attempts
			sr.Binding = o.Binding
		}
		rep.Steps = append(rep.Steps, sr)
	}
	return rep
}

// WriteReport writes report.json and summary.md into dir, creating it if needed.
func WriteReport(dir string, rep *Report) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "summary.md"), []byte(rep.Markdown()), 0o600); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

// Markdown renders the report for humans.
func (rep *Report) Markdown() string {
	var md strings.Builder

	fmt.Fprintf(&md, "# Recipe Run: %s\n\n", rep.Recipe)
	fmt.Fprintf(&md, "**Status:** %s\n\n", rep.Status)
	if rep.FinalVersion != "" && !strings.HasSuffix(rep.Recipe, "@"+rep.FinalVersion) {
		fmt.Fprintf(&md, "**Patched to:** %s\n\n", rep.FinalVersion)
	}
	fmt.Fprintf(&md, "**Started:** %s\n\n", rep.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Duration:** %s\n\n", rep.Duration)
	if rep.Error != "" {
		fmt.Fprintf(&md, "**Error:** %s\n\n", rep.Error)
	}

	md.WriteString("## Steps\n\n")
	for _, s := range rep.Steps {
		if s.Status == "" {
			fmt.Fprintf(&md, "- `%s` ok\n", s.StepID)
			continue
		}
		fmt.Fprintf(&md, "- `%s` %s (%s) via %s", s.StepID, s.Status, s.Kind, s.Action)
		if len(s.Attempts) > 0 {
			names := make([]string, len(s.Attempts))
			for i, a := range s.Attempts {
				names[i] = string(a)
			}
			fmt.Fprintf(&md, ", tried %s", strings.Join(names, ", "))
		}
		md.WriteString("\n")
	}
	md.WriteString("\n")

	if len(rep.Extracted) > 0 {
		md.WriteString("## Extracted\n\n")
		keys := make([]string, 0, len(rep.Extracted))
		for k := range rep.Extracted {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&md, "- **%s:** %s\n", k, rep.Extracted[k])
		}
		md.WriteString("\n")
	}

	md.WriteString("## Usage\n\n")
	fmt.Fprintf(&md, "- **LLM calls:** %d\n", rep.Usage.LLMCalls)
	fmt.Fprintf(&md, "- **Authoring calls:** %d\n", rep.Usage.AuthoringCalls)
	fmt.Fprintf(&md, "- **Prompt chars:** %d\n", rep.Usage.PromptChars)
	fmt.Fprintf(&md, "- **Screenshots:** %d\n", rep.Usage.Screenshots)
	return md.String()
}
