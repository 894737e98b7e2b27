package protocol

import "encoding/hex"

// Status is the response status byte.
type Status uint8

const (
	// StatusSuccess indicates the operation completed and, for conditional
	// operations, that its precondition held.
	StatusSuccess = Status(0x00)

	// StatusNotExecuted indicates a conditional operation whose precondition
	// failed (key already present, key missing for replace, version mismatch).
	StatusNotExecuted = Status(0x01)

	// StatusKeyDoesNotExist indicates the key is not in the cache.
	StatusKeyDoesNotExist = Status(0x02)

	// StatusInvalidMagicOrMessageID indicates the server could not parse the
	// request magic or message id.
	StatusInvalidMagicOrMessageID = Status(0x81)

	// StatusUnknownCommand indicates an opcode the server does not know.
	StatusUnknownCommand = Status(0x82)

	// StatusUnknownVersion indicates a protocol version the server does not speak.
	StatusUnknownVersion = Status(0x83)

	// StatusParseError indicates a malformed request body.
	StatusParseError = Status(0x84)

	// StatusServerError indicates a failure while executing the request, such
	// as an unknown cache name.
	StatusServerError = Status(0x85)

	// StatusCommandTimedOut indicates the server gave up executing the request.
	StatusCommandTimedOut = Status(0x86)
)

// ErrorStatuses lists every error status the protocol defines.
var ErrorStatuses = []Status{
	StatusInvalidMagicOrMessageID,
	StatusUnknownCommand,
	StatusUnknownVersion,
	StatusParseError,
	StatusServerError,
	StatusCommandTimedOut,
}

// IsOK reports whether s is one of the statuses a response body can follow:
// success, not executed and key does not exist. Anything else carries an
// error message instead of a body.
func (s Status) IsOK() bool {
	switch s {
	case StatusSuccess, StatusNotExecuted, StatusKeyDoesNotExist:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNotExecuted:
		return "NotExecuted"
	case StatusKeyDoesNotExist:
		return "KeyDoesNotExist"
	case StatusInvalidMagicOrMessageID:
		return "InvalidMagicOrMessageID"
	case StatusUnknownCommand:
		return "UnknownCommand"
	case StatusUnknownVersion:
		return "UnknownVersion"
	case StatusParseError:
		return "ParseError"
	case StatusServerError:
		return "ServerError"
	case StatusCommandTimedOut:
		return "CommandTimedOut"
	}

	return "x" + hex.EncodeToString([]byte{byte(s)})
}

// Outcome is the decoded result of a response status for a given response
// shape.
type Outcome uint8

const (
	// OutcomeSuccess means the operation ran and any precondition held.
	OutcomeSuccess Outcome = iota

	// OutcomeNotApplied means a precondition failed and nothing changed.
	OutcomeNotApplied

	// OutcomeVersionMismatch means a versioned operation found the entry
	// at a different version.
	OutcomeVersionMismatch

	// OutcomeKeyAbsent means the key was not in the cache.
	OutcomeKeyAbsent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotApplied:
		return "not-applied"
	case OutcomeVersionMismatch:
		return "version-mismatch"
	case OutcomeKeyAbsent:
		return "key-absent"
	}
	return "unknown"
}

// keyLessOutcome maps statuses for clear, ping and containsKey.
func keyLessOutcome(s Status) Outcome {
	switch s {
	case StatusSuccess:
		return OutcomeSuccess
	case StatusKeyDoesNotExist:
		return OutcomeKeyAbsent
	}
	return OutcomeNotApplied
}

// twoWayOutcome maps statuses for putIfAbsent and replace.
func twoWayOutcome(s Status) Outcome {
	if s == StatusSuccess {
		return OutcomeSuccess
	}
	return OutcomeNotApplied
}

// threeWayOutcome maps statuses for replaceIfVersion, remove and
// removeIfVersion.
func threeWayOutcome(s Status) Outcome {
	switch s {
	case StatusSuccess:
		return OutcomeSuccess
	case StatusNotExecuted:
		return OutcomeVersionMismatch
	}
	return OutcomeKeyAbsent
}
