package types

import "fmt"

// RecoveryAction is a single rung of a fallback ladder.
type RecoveryAction string

const (
	ActionRetry             RecoveryAction = "retry"               // ActionRetry re-runs the failed action as-is (or with an alternate method).
	ActionObserveRefresh    RecoveryAction = "observe_refresh"     // ActionObserveRefresh re-discovers candidates on the live page.
	ActionSelectorFallback  RecoveryAction = "selector_fallback"   // ActionSelectorFallback tries the recipe's recorded fallback selectors.
	ActionHealingMemory     RecoveryAction = "healing_memory"      // ActionHealingMemory replays a previously successful binding.
	ActionAuthoringPatch    RecoveryAction = "authoring_patch"     // ActionAuthoringPatch asks the authoring service for a recipe patch.
	ActionCheckpoint        RecoveryAction = "checkpoint"          // ActionCheckpoint hands control to a human.
	ActionAbort             RecoveryAction = "abort"               // ActionAbort stops the run.
	ActionNetworkParse      RecoveryAction = "network_parse"       // ActionNetworkParse reads already-captured network traffic.
	ActionCVCoordinate      RecoveryAction = "cv_coordinate"       // ActionCVCoordinate locates a canvas target by pixel geometry.
	ActionCanvasLLMFallback RecoveryAction = "canvas_llm_fallback" // ActionCanvasLLMFallback asks the language model as a last resort.
)

// IsTerminal reports whether the action ends automated recovery.
func (a RecoveryAction) IsTerminal() bool {
	return a == ActionCheckpoint || a == ActionAbort
}

// RecoveryPlan is an ordered ladder bound to the failure it answers.
type RecoveryPlan struct {
	Actions []RecoveryAction
	Context FailureContext
}

// Index returns the position of a in the plan, or -1.
func (p RecoveryPlan) Index(a RecoveryAction) int {
	for i, action := range p.Actions {
		if action == a {
			return i
		}
	}
	return -1
}

// Last returns the final rung of the plan.
func (p RecoveryPlan) Last() RecoveryAction {
	if len(p.Actions) == 0 {
		return ""
	}
	return p.Actions[len(p.Actions)-1]
}

func (p RecoveryPlan) String() string {
	return fmt.Sprintf("%s: %v", p.Context.ErrorKind, p.Actions)
}
