// Package patch turns authoring-service proposals into new recipe versions.
//
// A payload is checked by Validate, graded by ClassifyPatch, and applied by
// Workflow.ApplyAndVersionUp. Minor payloads (a single action or selector op)
// are applied directly. Anything that changes what counts as success, or
// bundles several ops, needs a GO from the checkpoint gate first.
package patch

import "github.com/entrhq/forge-recipe/pkg/types"

// ClassifyPatch grades a payload.
func ClassifyPatch(payload types.PatchPayload) types.Severity {
	if len(payload.Patch) != 1 {
		return types.SeverityMajor
	}
	switch payload.Patch[0].Op {
	case types.OpActionsReplace, types.OpActionsAdd, types.OpSelectorsAdd, types.OpSelectorsReplace:
		return types.SeverityMinor
	default:
		return types.SeverityMajor
	}
}
