package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/forge-recipe/pkg/healing"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// execute runs the command tree against a settings file in dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	jsonOutput = false
	classifySelector, classifySourceURL, classifyContext = "", "", ""
	memoryStore, memoryMinConfidence, memoryMaxAge = "", -1, -1
	patchRecipeDir, patchDomain, patchFlow, patchVersion, patchYes = ".", "", "", "", false
	recipeDir, recipeDomain, recipeFlow = ".", "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "config.json")}, args...))

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, t.TempDir(), "classify", "--json", "--selector", "#pay",
		"Timeout 5000ms exceeded waiting for locator('#pay')")
	require.NoError(t, err)

	var got classification
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, types.ErrorKindTargetNotFound, got.ErrorKind)
	require.NotEmpty(t, got.Actions)
	assert.Equal(t, types.ActionRetry, got.Actions[0])
	assert.Equal(t, types.ActionAbort, got.Actions[len(got.Actions)-1])
}

func TestClassifyCommandJoinsArguments(t *testing.T) {
	out, err := execute(t, t.TempDir(), "classify", "please", "enter", "the", "verification", "code")
	require.NoError(t, err)
	assert.Contains(t, out, "CaptchaOr2FA")
	assert.Contains(t, out, "checkpoint -> abort")
}

func TestRouteCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "route", "AuthoringServiceTimeout")
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint -> abort")

	out, err = execute(t, dir, "route", "--json")
	require.NoError(t, err)
	var routes map[types.ErrorKind][]types.RecoveryAction
	require.NoError(t, json.Unmarshal([]byte(out), &routes))
	assert.Len(t, routes, len(types.ErrorKinds))
	assert.Equal(t, types.ActionNetworkParse, routes[types.ErrorKindCanvasDetected][0])

	_, err = execute(t, dir, "route", "Bogus")
	assert.Error(t, err)
}

func TestMemoryCommands(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "healing.json")

	mem := healing.New(store)
	require.NoError(t, mem.Record("pay_button",
		types.ActionRef{Selector: "#pay-v2", Method: "click"},
		"https://shop.example.com/cart",
		healing.Evidence{OriginalSelector: "#pay", HealingMethod: healing.MethodLLM}))
	require.NoError(t, mem.Record("search_box",
		types.ActionRef{Selector: "input[name=q]", Method: "fill"},
		"https://www.example.org/",
		healing.Evidence{OriginalSelector: "#q", HealingMethod: healing.MethodObserveRefresh}))
	require.NoError(t, mem.RecordFailure("search_box", "https://www.example.org/"))

	out, err := execute(t, dir, "memory", "list", "--store", store, "--json")
	require.NoError(t, err)
	var records []*healing.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 2)

	out, err = execute(t, dir, "memory", "list", "pay_button", "--store", store)
	require.NoError(t, err)
	assert.Contains(t, out, "#pay-v2")
	assert.NotContains(t, out, "input[name=q]")

	out, err = execute(t, dir, "memory", "lookup", "pay_button", "https://shop.example.com/checkout", "--store", store, "--json")
	require.NoError(t, err)
	var ref types.ActionRef
	require.NoError(t, json.Unmarshal([]byte(out), &ref))
	assert.Equal(t, "#pay-v2", ref.Selector)

	// search_box sits at 0.5, below the default 0.6 threshold.
	out, err = execute(t, dir, "memory", "lookup", "search_box", "https://example.org/", "--store", store)
	require.NoError(t, err)
	assert.Contains(t, out, "no binding")

	out, err = execute(t, dir, "memory", "stats", "--store", store, "--json")
	require.NoError(t, err)
	var stats healing.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 1, stats.ByDomain["example.org"])

	out, err = execute(t, dir, "memory", "prune", "--store", store, "--min-confidence", "0.9")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 record(s)")
	assert.Len(t, healing.New(store).Records(""), 1)
}

func TestMemoryStoreFromSettings(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "from-settings.json")

	_, err := execute(t, dir, "config", "set", "healing", "path", store)
	require.NoError(t, err)
	require.NoError(t, healing.New(store).Record("k", types.ActionRef{Selector: "#k", Method: "click"},
		"https://a.example.com/", healing.Evidence{HealingMethod: healing.MethodManual}))

	out, err := execute(t, dir, "memory", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, store)
	assert.Contains(t, out, "a.example.com")
}

func writePayload(t *testing.T, dir string, payload types.PatchPayload) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	path := filepath.Join(dir, "payload.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func minorPayload(t *testing.T) types.PatchPayload {
	t.Helper()
	op, err := types.NewPatchOp(types.OpActionsReplace, "pay_button", "",
		types.ActionRef{Selector: "[data-test=pay]", Method: "click"})
	require.NoError(t, err)
	return types.PatchPayload{Reason: "pay button id changed", Patch: []types.PatchOp{op}}
}

func TestPatchValidateCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "patch", "validate", writePayload(t, dir, minorPayload(t)))
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
	assert.Contains(t, out, "minor")

	bad := minorPayload(t)
	bad.Reason = ""
	bad.Patch[0].Value = json.RawMessage(`{"selector":"div","method":"click"}`)
	out, err = execute(t, dir, "patch", "validate", "--json", writePayload(t, dir, bad))
	require.Error(t, err)

	var report patchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Valid)
	assert.GreaterOrEqual(t, len(report.Problems), 2)
}

func checkoutRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Domain:  "shop.example.com",
		Flow:    "checkout",
		Version: "v001",
		Workflow: recipe.Workflow{
			ID: "checkout",
			Steps: []recipe.WorkflowStep{
				{ID: "open", Op: recipe.StepGoto, Args: map[string]interface{}{"url": "https://shop.example.com/cart"}},
				{ID: "pay", Op: recipe.StepActCached, TargetKey: "pay_button"},
			},
		},
		Actions: map[string]recipe.ActionEntry{
			"pay_button": {Instruction: "click pay", Preferred: types.ActionRef{Selector: "#pay", Method: "click"}},
		},
		Selectors:    map[string]recipe.SelectorEntry{},
		Policies:     map[string]recipe.Policy{},
		Fingerprints: map[string]recipe.Fingerprint{},
	}
}

func TestPatchApplyAndRecipeCommands(t *testing.T) {
	dir := t.TempDir()
	recipes := filepath.Join(dir, "recipes")
	require.NoError(t, recipe.NewStore(recipes).Save(checkoutRecipe()))

	out, err := execute(t, dir, "patch", "apply", writePayload(t, dir, minorPayload(t)),
		"--recipe-dir", recipes, "--domain", "shop.example.com", "--flow", "checkout")
	require.NoError(t, err)
	assert.Contains(t, out, "v002")

	out, err = execute(t, dir, "recipe", "versions",
		"--recipe-dir", recipes, "--domain", "shop.example.com", "--flow", "checkout")
	require.NoError(t, err)
	assert.Equal(t, "v001\nv002\n", out)

	out, err = execute(t, dir, "recipe", "show", "v002",
		"--recipe-dir", recipes, "--domain", "shop.example.com", "--flow", "checkout")
	require.NoError(t, err)
	var shown recipe.Recipe
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "[data-test=pay]", shown.Actions["pay_button"].Preferred.Selector)
}

func TestPatchApplyMajorNeedsApproval(t *testing.T) {
	dir := t.TempDir()
	recipes := filepath.Join(dir, "recipes")
	require.NoError(t, recipe.NewStore(recipes).Save(checkoutRecipe()))

	payload := minorPayload(t)
	second, err := types.NewPatchOp(types.OpActionsAdd, "confirm_button", "",
		types.ActionRef{Selector: "#confirm", Method: "click"})
	require.NoError(t, err)
	payload.Patch = append(payload.Patch, second)
	path := writePayload(t, dir, payload)

	// The shop domain is trusted, so the major patch is approved without a prompt.
	_, err = execute(t, dir, "config", "set", "checkpoint", "auto_approve_domains", "*.example.com")
	require.NoError(t, err)

	out, err := execute(t, dir, "patch", "apply", path, "--json",
		"--recipe-dir", recipes, "--domain", "shop.example.com", "--flow", "checkout", "--recipe-version", "v001")
	require.NoError(t, err)
	var versions map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &versions))
	assert.Equal(t, map[string]string{"from": "v001", "to": "v002"}, versions)

	latest, err := recipe.NewStore(recipes).Latest("shop.example.com", "checkout")
	require.NoError(t, err)
	assert.Contains(t, latest.Actions, "confirm_button")
}

func TestRecipeNextCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "recipe", "next", "v009")
	require.NoError(t, err)
	assert.Equal(t, "v010\n", out)

	_, err = execute(t, dir, "recipe", "next", "9")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "config", "set", "budget", "max_llm_calls_per_run", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "budget.max_llm_calls_per_run = 5")
	assert.FileExists(t, filepath.Join(dir, "config.json"))

	out, err = execute(t, dir, "config", "show", "budget")
	require.NoError(t, err)
	var budget map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &budget))
	assert.EqualValues(t, 5, budget["max_llm_calls_per_run"])

	_, err = execute(t, dir, "config", "set", "budget", "max_llm_calls_per_run", "-1")
	assert.Error(t, err, "validation runs before saving")

	_, err = execute(t, dir, "config", "set", "budget", "no_such_key", "1")
	assert.Error(t, err)

	_, err = execute(t, dir, "config", "set", "nope", "key", "1")
	assert.Error(t, err)

	out, err = execute(t, dir, "config", "reset", "budget")
	require.NoError(t, err)
	assert.Contains(t, out, "budget reset")

	out, err = execute(t, dir, "config", "show")
	require.NoError(t, err)
	var all map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	assert.EqualValues(t, 10, all["budget"]["max_llm_calls_per_run"])
	assert.Contains(t, all, "checkpoint")

	out, err = execute(t, dir, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.json")+"\n", out)
}
