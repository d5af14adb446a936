package login

import (
	"errors"
	"fmt"
)

// State of a login attempt. Attempts are not stored; every call reports the
// state the attempt reached.
type State int

const (
	AwaitingCredentials State = iota
	AwaitingCode
	Authenticated
	Rejected
)

func (s State) String() string {
	switch s {
	case AwaitingCredentials:
		return "awaiting_credentials"
	case AwaitingCode:
		return "awaiting_code"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reason classifies a rejection for logs and metrics. It is never shown to
// the client.
type Reason string

const (
	ReasonInvalidCredentials  Reason = "invalid_credentials"
	ReasonDispatchFailed      Reason = "dispatch_failed"
	ReasonCodeDenied          Reason = "code_denied"
	ReasonProviderUnavailable Reason = "provider_unavailable"
	ReasonSessionFailed       Reason = "session_failed"
)

// Steps of the protocol, used as log and metric labels.
const (
	StepStart    = "start"
	StepComplete = "complete"
)

// ErrRejected matches every RejectedError.
var ErrRejected = errors.New("login rejected")

// RejectedError is the only error returned by the orchestrator.
type RejectedError struct {
	Step   string
	Reason Reason
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login rejected at %s: %s: %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("login rejected at %s: %s", e.Step, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// ReasonOf extracts the rejection reason from err, or "" when err is not a rejection.
func ReasonOf(err error) Reason {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}
