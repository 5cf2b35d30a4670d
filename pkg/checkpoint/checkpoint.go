// Package checkpoint hands control to a human when automation should not proceed alone.
//
// A Gate answers a Request with GO or NOT_GO. Manager tracks pending requests
// and delivers responses from whatever front end is attached; AutoApprover
// short-circuits trusted domains; TerminalGate asks on the controlling terminal.
package checkpoint

import (
	"context"
	"time"
)

// DefaultTimeout bounds how long a checkpoint waits for a human.
const DefaultTimeout = 5 * time.Minute

// Decision is the answer to a checkpoint.
type Decision string

const (
	GO    Decision = "GO"
	NotGO Decision = "NOT_GO"
)

// Approved reports whether the decision allows the run to continue.
func (d Decision) Approved() bool {
	return d == GO
}

// Request describes what the human is being asked to approve.
type Request struct {
	// Message is the one-line question shown to the approver.
	Message string

	// Reason explains why the change or pause was proposed.
	Reason string

	// Domain is the site the run is automating.
	Domain string

	// StepID is the recipe step that triggered the checkpoint, if any.
	StepID string

	// Detail is an optional JSON document (usually a patch) shown as a preview.
	Detail string

	// ScreenshotRef points at a screenshot of the page, if one was taken.
	ScreenshotRef string
}

// Gate decides checkpoints. Implementations must honour ctx cancellation.
type Gate interface {
	RequestApproval(ctx context.Context, req Request) (Decision, error)
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, req Request) (Decision, error)

// RequestApproval calls f.
func (f GateFunc) RequestApproval(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// Response answers a pending Manager request.
type Response struct {
	ApprovalID string
	Decision   Decision
}
