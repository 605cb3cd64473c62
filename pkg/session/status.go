package session

import (
	"errors"
	"fmt"
)

// Status is the subscriber lifecycle state as seen by the client.
type Status int

const (
	StatusNew Status = iota
	// StatusSignatureRegistered: INI accepted, HIA outstanding.
	StatusSignatureRegistered
	// StatusAuthenticationRegistered: HIA accepted, INI outstanding.
	StatusAuthenticationRegistered
	// StatusInitialized: INI and HIA accepted, waiting for bank activation.
	StatusInitialized
	// StatusReady: bank keys fetched, transfers allowed.
	StatusReady
	// StatusSuspended: the subscriber was revoked with SPR.
	StatusSuspended
)

var statusNames = map[Status]string{
	StatusNew:                      "new",
	StatusSignatureRegistered:      "signature-registered",
	StatusAuthenticationRegistered: "authentication-registered",
	StatusInitialized:              "initialized",
	StatusReady:                    "ready",
	StatusSuspended:                "suspended",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return StatusNew, fmt.Errorf("unknown subscriber status %q", s)
}

// Action is an operation that depends on or changes the subscriber status.
type Action string

const (
	ActionRegisterSignature      Action = "INI"
	ActionRegisterAuthentication Action = "HIA"
	ActionFetchBankKeys          Action = "HPB"
	ActionRevoke                 Action = "SPR"
	ActionTransfer               Action = "transfer"
)

// ErrIllegalState is matched by every StateError.
var ErrIllegalState = errors.New("operation not allowed in current subscriber state")

// StateError reports an action that is illegal for the current status.
type StateError struct {
	Status Status
	Action Action
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s while %s", ErrIllegalState, e.Action, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrIllegalState }

// Transition returns the status reached when action succeeds from current.
// skip is true when the action was already applied; next then equals
// current and no request must be sent.
func Transition(current Status, action Action) (next Status, skip bool, err error) {
	illegal := &StateError{Status: current, Action: action}

	switch action {
	case ActionRegisterSignature:
		switch current {
		case StatusNew, StatusSuspended:
			return StatusSignatureRegistered, false, nil
		case StatusAuthenticationRegistered:
			return StatusInitialized, false, nil
		case StatusSignatureRegistered, StatusInitialized, StatusReady:
			return current, true, nil
		}
	case ActionRegisterAuthentication:
		switch current {
		case StatusNew, StatusSuspended:
			return StatusAuthenticationRegistered, false, nil
		case StatusSignatureRegistered:
			return StatusInitialized, false, nil
		case StatusAuthenticationRegistered, StatusInitialized, StatusReady:
			return current, true, nil
		}
	case ActionFetchBankKeys:
		switch current {
		case StatusInitialized, StatusReady:
			return StatusReady, false, nil
		}
	case ActionRevoke:
		if current == StatusReady {
			return StatusSuspended, false, nil
		}
	case ActionTransfer:
		if current == StatusReady {
			return StatusReady, false, nil
		}
	default:
		return current, false, fmt.Errorf("unknown action %q", action)
	}
	return current, false, illegal
}
