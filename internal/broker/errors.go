package broker

import (
	"errors"
	"fmt"
)

// ErrProcessNotRunning is returned by Call/Notify when the child's stdin
// is unavailable (the supervisor has no running child).
var ErrProcessNotRunning = errors.New("broker: process not running")

// ErrTimeout is returned when an outbound call exceeds CallTimeout.
var ErrTimeout = errors.New("broker: rpc call timed out")

// ErrCancelled is used to fail pending calls when the child exits with
// requests still in flight.
var ErrCancelled = errors.New("broker: cancelled")

// JSONRPCError is a peer-reported JSON-RPC error, surfaced verbatim to
// the caller of Call.
type JSONRPCError struct {
	Code    int64
	Message string
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
