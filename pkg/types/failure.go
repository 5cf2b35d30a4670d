package types

// ActionRef is a replayable binding of an element to an interaction.
// Healing records, recipe action entries and patch values all share this shape.
type ActionRef struct {
	Selector    string   `json:"selector"`
	Description string   `json:"description,omitempty"`
	Method      string   `json:"method"`
	Arguments   []string `json:"arguments,omitempty"`

	// TargetKey is the stable logical name of the element, if known.
	TargetKey string `json:"targetKey,omitempty"`
}

// Clone returns a copy that shares no slices with a.
func (a ActionRef) Clone() ActionRef {
	out := a
	if a.Arguments != nil {
		out.Arguments = append([]string(nil), a.Arguments...)
	}
	return out
}

// FailureContext captures a failed step at classification time.
// It is passed by value through the recovery ladder and never mutated.
type FailureContext struct {
	StepID         string     `json:"stepId"`
	ErrorKind      ErrorKind  `json:"errorKind"`
	URL            string     `json:"url"`
	Title          string     `json:"title,omitempty"`
	FailedSelector string     `json:"failedSelector,omitempty"`
	FailedAction   *ActionRef `json:"failedAction,omitempty"`
	DOMSnippet     string     `json:"domSnippet,omitempty"`
	ScreenshotRef  string     `json:"screenshotRef,omitempty"`
}

// TargetKey returns the logical target of the failure, falling back to the step id.
func (fc FailureContext) TargetKey() string {
	if fc.FailedAction != nil && fc.FailedAction.TargetKey != "" {
		return fc.FailedAction.TargetKey
	}
	return fc.StepID
}

// Selector returns the selector involved in the failure, if any.
func (fc FailureContext) Selector() string {
	if fc.FailedSelector != "" {
		return fc.FailedSelector
	}
	if fc.FailedAction != nil {
		return fc.FailedAction.Selector
	}
	return ""
}
