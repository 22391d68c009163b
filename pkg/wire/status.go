package wire

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
)

// Status is a protocol result code. Values are protocol-stable.
//
// Status implements error so that results can flow through ordinary Go
// error returns; StatusOK.Err() is nil.
type Status int

const (
	// StatusOK indicates success.
	StatusOK Status = 0

	// StatusFailed is a generic failure.
	StatusFailed Status = -1

	// StatusNoAlloc indicates a payload could not be allocated or encoded.
	StatusNoAlloc Status = -2

	// StatusNotFound indicates the addressed object or property is unknown.
	StatusNotFound Status = -3

	// StatusReadOnly indicates a write to a read-only property.
	StatusReadOnly Status = -4

	// StatusNotImpl indicates the operation is not implemented.
	StatusNotImpl Status = -5

	// StatusPending indicates all request slots are in use.
	StatusPending Status = -6

	// StatusObjectNotInitialized indicates the object has no address yet.
	StatusObjectNotInitialized Status = -7

	// StatusUnregisteredObject indicates the object was never registered.
	StatusUnregisteredObject Status = -8

	StatusIgnored Status = -9

	// StatusNoChanges indicates there was nothing to apply.
	StatusNoChanges Status = -10

	// StatusPartialSuccess indicates some properties were rejected.
	StatusPartialSuccess Status = -11

	StatusIncomplete Status = -12

	// StatusUnsupported indicates an unsupported type or message.
	StatusUnsupported Status = -13

	// StatusUnauthorized indicates authentication failed or is required.
	StatusUnauthorized Status = -14

	// StatusTimeout indicates no confirmation arrived in time.
	StatusTimeout Status = -101

	// StatusNotConnected indicates the wire is closed.
	StatusNotConnected Status = -102

	// StatusRefused indicates the peer refused the request.
	StatusRefused Status = -103

	StatusDontDispatch Status = -104

	// StatusDestinationUnreachable indicates no route to the destination.
	StatusDestinationUnreachable Status = -105
)

// Local transport codes. They never appear on the wire.
const (
	StatusFcntl  Status = -1000
	StatusListen Status = -1001
	StatusSock   Status = -1002
	StatusBind   Status = -1003
)

var statusNames = map[Status]string{
	StatusOK:                     "OK",
	StatusFailed:                 "FAILED",
	StatusNoAlloc:                "NO_ALLOC",
	StatusNotFound:               "NOT_FOUND",
	StatusReadOnly:               "READ_ONLY",
	StatusNotImpl:                "NOT_IMPL",
	StatusPending:                "PENDING",
	StatusObjectNotInitialized:   "OBJECT_NOT_INITIALIZED",
	StatusUnregisteredObject:     "UNREGISTERED_OBJECT",
	StatusIgnored:                "IGNORED",
	StatusNoChanges:              "NO_CHANGES",
	StatusPartialSuccess:         "PARTIAL_SUCCESS",
	StatusIncomplete:             "INCOMPLETE",
	StatusUnsupported:            "UNSUPPORTED",
	StatusUnauthorized:           "UNAUTHORIZED",
	StatusTimeout:                "TIMEOUT",
	StatusNotConnected:           "NOT_CONNECTED",
	StatusRefused:                "REFUSED",
	StatusDontDispatch:           "DONT_DISPATCH",
	StatusDestinationUnreachable: "DESTINATION_UNREACHABLE",
	StatusFcntl:                  "FCNTL",
	StatusListen:                 "LISTEN",
	StatusSock:                   "SOCK",
	StatusBind:                   "BIND",
}

// String returns the status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
}

// Error implements error.
func (s Status) Error() string {
	return "flake: " + s.String()
}

// Err returns nil for StatusOK and the status itself otherwise.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return s
}

// IsSuccess reports whether the status is a non-fatal outcome.
// OK, ReadOnly and NoChanges all count as success.
func (s Status) IsSuccess() bool {
	return s == StatusOK || s == StatusReadOnly || s == StatusNoChanges
}

// IsLocal reports whether the status is a local transport code.
func (s Status) IsLocal() bool {
	return s <= StatusFcntl
}

// WireByte returns the status as carried in a confirmation.
// Local codes are reported as StatusFailed.
func (s Status) WireByte() int8 {
	if s < -128 || s > 127 {
		return int8(StatusFailed)
	}
	return int8(s)
}

// StatusOf maps an error to a protocol status.
//
// nil maps to StatusOK, a wrapped Status to itself, deadline errors to
// StatusTimeout and closed connections to StatusNotConnected. Anything
// else is StatusFailed.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return StatusNotConnected
	}
	return StatusFailed
}
