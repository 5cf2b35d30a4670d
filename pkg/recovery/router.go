package recovery

import "github.com/entrhq/forge-recipe/pkg/types"

// Route returns the fallback ladder for kind, cheapest rung first.
//
// Every ladder ends in checkpoint or abort. The returned slice is freshly
// allocated and may be modified by the caller.
func Route(kind types.ErrorKind) []types.RecoveryAction {
	switch kind {
	case types.ErrorKindTargetNotFound:
		return []types.RecoveryAction{
			types.ActionRetry,
			types.ActionObserveRefresh,
			types.ActionSelectorFallback,
			types.ActionHealingMemory,
			types.ActionAuthoringPatch,
			types.ActionCheckpoint,
			types.ActionAbort,
		}
	case types.ErrorKindNotActionable:
		// The element is there; an alternate selector for the same target is
		// cheaper than re-discovering the page.
		return []types.RecoveryAction{
			types.ActionRetry,
			types.ActionSelectorFallback,
			types.ActionObserveRefresh,
			types.ActionHealingMemory,
			types.ActionAuthoringPatch,
			types.ActionCheckpoint,
			types.ActionAbort,
		}
	case types.ErrorKindExtractionEmpty:
		return []types.RecoveryAction{
			types.ActionRetry,
			types.ActionObserveRefresh,
			types.ActionSelectorFallback,
			types.ActionHealingMemory,
			types.ActionAuthoringPatch,
			types.ActionCheckpoint,
			types.ActionAbort,
		}
	case types.ErrorKindExpectationFailed:
		return []types.RecoveryAction{
			types.ActionRetry,
			types.ActionAuthoringPatch,
			types.ActionCheckpoint,
			types.ActionAbort,
		}
	case types.ErrorKindCanvasDetected:
		return []types.RecoveryAction{
			types.ActionNetworkParse,
			types.ActionCVCoordinate,
			types.ActionCanvasLLMFallback,
			types.ActionCheckpoint,
		}
	case types.ErrorKindCaptchaOr2FA, types.ErrorKindAuthoringServiceTimeout:
		return []types.RecoveryAction{
			types.ActionCheckpoint,
			types.ActionAbort,
		}
	default:
		// Unknown kinds come from corrupted input, not the classifier.
		return []types.RecoveryAction{types.ActionCheckpoint, types.ActionAbort}
	}
}

// Plan binds the ladder for fc.ErrorKind to fc.
func Plan(fc types.FailureContext) types.RecoveryPlan {
	return types.RecoveryPlan{
		Actions: Route(fc.ErrorKind),
		Context: fc,
	}
}

// Diagnose classifies failure and returns the plan for it in one call.
func Diagnose(failure error, fc types.FailureContext) types.RecoveryPlan {
	fc.ErrorKind = Classify(failure, ClassifyContext{
		Selector:  fc.Selector(),
		SourceURL: fc.URL,
	})
	return Plan(fc)
}
