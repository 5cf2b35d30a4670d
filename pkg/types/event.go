package types

// RecoveryEventType defines the type of event emitted while a run recovers from failures.
type RecoveryEventType string

const (
	EventTypeStepStart        RecoveryEventType = "step_start"        // EventTypeStepStart indicates a recipe step is about to run.
	EventTypeStepSucceeded    RecoveryEventType = "step_succeeded"    // EventTypeStepSucceeded indicates a step finished without recovery.
	EventTypeStepFailed       RecoveryEventType = "step_failed"       // EventTypeStepFailed indicates a step failed and was classified.
	EventTypeRungStart        RecoveryEventType = "rung_start"        // EventTypeRungStart indicates a recovery rung is being attempted.
	EventTypeRungSucceeded    RecoveryEventType = "rung_succeeded"    // EventTypeRungSucceeded indicates a rung recovered the step.
	EventTypeRungFailed       RecoveryEventType = "rung_failed"       // EventTypeRungFailed indicates a rung did not recover the step.
	EventTypeRungSkipped      RecoveryEventType = "rung_skipped"      // EventTypeRungSkipped indicates a rung was not eligible (budget, missing collaborator).
	EventTypeDowngrade        RecoveryEventType = "downgrade"         // EventTypeDowngrade indicates the budget guard issued a downgrade.
	EventTypePatchApplied     RecoveryEventType = "patch_applied"     // EventTypePatchApplied indicates a new recipe version was written.
	EventTypeApprovalRequest  RecoveryEventType = "approval_request"  // EventTypeApprovalRequest indicates a checkpoint is waiting for a decision.
	EventTypeApprovalTimeout  RecoveryEventType = "approval_timeout"  // EventTypeApprovalTimeout indicates a checkpoint timed out.
	EventTypeApprovalGranted  RecoveryEventType = "approval_granted"  // EventTypeApprovalGranted indicates a checkpoint returned GO.
	EventTypeApprovalRejected RecoveryEventType = "approval_rejected" // EventTypeApprovalRejected indicates a checkpoint returned NOT_GO.
	EventTypeRunAborted       RecoveryEventType = "run_aborted"       // EventTypeRunAborted indicates the ladder reached abort.
)

// RecoveryEvent is emitted by the runner and checkpoint gate.
type RecoveryEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Error contains the failure for failed-step and failed-rung events.
	Error error

	// Type indicates the kind of event.
	Type RecoveryEventType

	// StepID is the recipe step the event belongs to.
	StepID string

	// ErrorKind is the classification of the failure being recovered.
	ErrorKind ErrorKind

	// Action is the rung being attempted (rung events only).
	Action RecoveryAction

	// ApprovalID identifies checkpoint requests and responses.
	ApprovalID string

	// Message is a human-readable description (approval prompts, downgrade names).
	Message string
}

// EventEmitter receives recovery events.
type EventEmitter func(event *RecoveryEvent)

// NewStepStartEvent creates a step start event.
func NewStepStartEvent(stepID string) *RecoveryEvent {
	return &RecoveryEvent{
		Type:     EventTypeStepStart,
		StepID:   stepID,
		Metadata: make(map[string]interface{}),
	}
}

// NewStepSucceededEvent creates a step succeeded event.
func NewStepSucceededEvent(stepID string) *RecoveryEvent {
	return &RecoveryEvent{
		Type:     EventTypeStepSucceeded,
		StepID:   stepID,
		Metadata: make(map[string]interface{}),
	}
}

// NewStepFailedEvent creates a step failed event.
func NewStepFailedEvent(stepID string, kind ErrorKind, err error) *RecoveryEvent {
	return &RecoveryEvent{
		Type:      EventTypeStepFailed,
		StepID:    stepID,
		ErrorKind: kind,
		Error:     err,
		Metadata:  make(map[string]interface{}),
	}
}

// NewRungEvent creates a rung start, succeeded, failed or skipped event.
func NewRungEvent(eventType RecoveryEventType, stepID string, kind ErrorKind, action RecoveryAction, err error) *RecoveryEvent {
	return &RecoveryEvent{
		Type:      eventType,
		StepID:    stepID,
		ErrorKind: kind,
		Action:    action,
		Error:     err,
		Metadata:  make(map[string]interface{}),
	}
}

// NewDowngradeEvent creates a downgrade event.
func NewDowngradeEvent(stepID, downgrade string) *RecoveryEvent {
	return &RecoveryEvent{
		Type:     EventTypeDowngrade,
		StepID:   stepID,
		Message:  downgrade,
		Metadata: make(map[string]interface{}),
	}
}

// NewPatchAppliedEvent creates a patch applied event.
func NewPatchAppliedEvent(stepID, version string) *RecoveryEvent {
	return &RecoveryEvent{
		Type:     EventTypePatchApplied,
		StepID:   stepID,
		Message:  version,
		Metadata: map[string]interface{}{"version": version},
	}
}

// NewApprovalRequestEvent creates an approval request event.
func NewApprovalRequestEvent(approvalID, message string) *RecoveryEvent {
	return &RecoveryEvent{
		Type:       EventTypeApprovalRequest,
		ApprovalID: approvalID,
		Message:    message,
		Metadata:   make(map[string]interface{}),
	}
}

// NewApprovalTimeoutEvent creates an approval timeout event.
func NewApprovalTimeoutEvent(approvalID string) *RecoveryEvent {
	return &RecoveryEvent{
		Type:       EventTypeApprovalTimeout,
		ApprovalID: approvalID,
		Metadata:   make(map[string]interface{}),
	}
}

// NewApprovalGrantedEvent creates an approval granted event.
func NewApprovalGrantedEvent(approvalID string) *RecoveryEvent {
	return &RecoveryEvent{
		Type:       EventTypeApprovalGranted,
		ApprovalID: approvalID,
		Metadata:   make(map[string]interface{}),
	}
}

// NewApprovalRejectedEvent creates an approval rejected event.
func NewApprovalRejectedEvent(approvalID string) *RecoveryEvent {
	return &RecoveryEvent{
		Type:       EventTypeApprovalRejected,
		ApprovalID: approvalID,
		Metadata:   make(map[string]interface{}),
	}
}

// NewRunAbortedEvent creates a run aborted event.
func NewRunAbortedEvent(stepID string, kind ErrorKind, err error) *RecoveryEvent {
	return &RecoveryEvent{
		Type:      EventTypeRunAborted,
		StepID:    stepID,
		ErrorKind: kind,
		Error:     err,
		Metadata:  make(map[string]interface{}),
	}
}
