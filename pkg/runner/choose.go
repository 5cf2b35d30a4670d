package runner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// choose observes candidates for a choose step and picks one with the step's policy.
//
// Candidates expose the fields text, selector and method to policy conditions.
func (r *Runner) choose(ctx context.Context, step recipe.WorkflowStep) (types.ActionRef, error) {
	instruction := stringArg(step.Args, "instruction")
	if instruction == "" {
		if entry, ok := r.recipe.Action(step.TargetKey); ok {
			instruction = entry.Instruction
		}
	}
	candidates, err := r.engine.Observe(ctx, instruction, "")
	if err != nil {
		return types.ActionRef{}, err
	}

	policy, ok := r.recipe.Policies[stringArg(step.Args, "policy")]
	if !ok {
		policy = recipe.Policy{}
	}
	ref, found := Choose(policy, candidates)
	if !found {
		return types.ActionRef{}, fmt.Errorf("no element found for %q satisfying policy", instruction)
	}
	return withStepArgs(ref, step), nil
}

// Choose applies policy to candidates: hard conditions filter, score rules
// rank, tie_break fields order equal scores and pick selects first or last.
func Choose(policy recipe.Policy, candidates []types.ActionRef) (types.ActionRef, bool) {
	type scored struct {
		ref   types.ActionRef
		score float64
		index int
	}

	var pool []scored
	for i, c := range candidates {
		fields := candidateFields(c)
		keep := true
		for _, cond := range policy.Hard {
			if !conditionHolds(cond, fields) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		s := scored{ref: c, index: i}
		for _, rule := range policy.Score {
			if conditionHolds(rule.When, fields) {
				s.score += rule.Add
			}
		}
		pool = append(pool, s)
	}
	if len(pool) == 0 {
		return types.ActionRef{}, false
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		fi, fj := candidateFields(pool[i].ref), candidateFields(pool[j].ref)
		for _, field := range policy.TieBreak {
			if fi[field] != fj[field] {
				return fi[field] < fj[field]
			}
		}
		return pool[i].index < pool[j].index
	})

	if strings.EqualFold(policy.Pick, "last") {
		return pool[len(pool)-1].ref, true
	}
	return pool[0].ref, true
}

func candidateFields(c types.ActionRef) map[string]string {
	return map[string]string{
		"text":     c.Description,
		"selector": c.Selector,
		"method":   c.Method,
	}
}

// conditionHolds evaluates eq, ne, contains, not_contains, gt and lt.
// Numeric operators compare the first number found in the field.
func conditionHolds(cond recipe.PolicyCondition, fields map[string]string) bool {
	actual := strings.ToLower(fields[cond.Field])
	want := strings.ToLower(fmt.Sprint(cond.Value))

	switch cond.Op {
	case "eq", "==", "":
		return actual == want
	case "ne", "!=":
		return actual != want
	case "contains":
		return strings.Contains(actual, want)
	case "not_contains":
		return !strings.Contains(actual, want)
	case "gt", "lt":
		a, okA := firstNumber(actual)
		w, okW := firstNumber(want)
		if !okA || !okW {
			return false
		}
		if cond.Op == "gt" {
			return a > w
		}
		return a < w
	}
	return false
}

func firstNumber(s string) (float64, bool) {
	start := -1
	for i, r := range s {
		isNum := (r >= '0' && r <= '9') || r == '.'
		if isNum && start < 0 {
			start = i
		}
		if !isNum && start >= 0 {
			n, err := strconv.ParseFloat(s[start:i], 64)
			return n, err == nil
		}
	}
	if start < 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[start:], 64)
	return n, err == nil
}
