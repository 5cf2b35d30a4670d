package types

import "fmt"

// ErrorKind is the canonical reason a recipe step failed.
type ErrorKind string

const (
	ErrorKindTargetNotFound          ErrorKind = "TargetNotFound"          // ErrorKindTargetNotFound indicates the step's element could not be located.
	ErrorKindNotActionable           ErrorKind = "NotActionable"           // ErrorKindNotActionable indicates the element exists but cannot be interacted with.
	ErrorKindExpectationFailed       ErrorKind = "ExpectationFailed"       // ErrorKindExpectationFailed indicates a post-step assertion did not hold.
	ErrorKindExtractionEmpty         ErrorKind = "ExtractionEmpty"         // ErrorKindExtractionEmpty indicates an extract step returned nothing.
	ErrorKindCanvasDetected          ErrorKind = "CanvasDetected"          // ErrorKindCanvasDetected indicates the target is rendered on a canvas surface.
	ErrorKindCaptchaOr2FA            ErrorKind = "CaptchaOr2FA"            // ErrorKindCaptchaOr2FA indicates a human-verification challenge.
	ErrorKindAuthoringServiceTimeout ErrorKind = "AuthoringServiceTimeout" // ErrorKindAuthoringServiceTimeout indicates the authoring backend did not answer in time.
)

// ErrorKinds lists every ErrorKind in classification precedence order.
var ErrorKinds = []ErrorKind{
	ErrorKindCaptchaOr2FA,
	ErrorKindCanvasDetected,
	ErrorKindAuthoringServiceTimeout,
	ErrorKindTargetNotFound,
	ErrorKindNotActionable,
	ErrorKindExtractionEmpty,
	ErrorKindExpectationFailed,
}

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k ErrorKind) Valid() bool {
	for _, known := range ErrorKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseErrorKind converts a wire name back into an ErrorKind.
func ParseErrorKind(s string) (ErrorKind, error) {
	k := ErrorKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown error kind %q", s)
	}
	return k, nil
}
