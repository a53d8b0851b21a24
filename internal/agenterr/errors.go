// Package agenterr defines the error taxonomy shared across the agent
// runtime. Sentinels separate session-fatal conditions (setup, budget)
// from per-invocation conditions that the control loop absorbs into the
// conversation as failed result turns.
package agenterr

import (
	"errors"
	"fmt"
)

var (
	// ErrSetup marks capability discovery or subprocess start failures.
	// Fatal for the session; never retried by the core.
	ErrSetup = errors.New("session setup failed")

	// ErrTransport marks a round trip that could not complete: process
	// died, malformed frame, broken pipe. Absorbed per invocation so
	// sibling requests in the same model turn still run.
	ErrTransport = errors.New("transport failed")

	// ErrTool marks an application-level failure reported by the remote
	// capability over a successful round trip.
	ErrTool = errors.New("tool failed")

	// ErrMissingArgument marks an invocation rejected before the round
	// trip because a required parameter is absent.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrUnknownCapability marks an invocation of a name that was not
	// discovered in the current session.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrTurnBudget marks a conversation abandoned by the caller-supplied
	// iteration budget before the model produced a final answer.
	ErrTurnBudget = errors.New("model turn budget exhausted")
)

// Setup wraps a formatted message as a session-fatal setup failure.
func Setup(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSetup, fmt.Sprintf(format, args...))
}

// Transport wraps a channel failure for the named capability.
func Transport(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransport, name, err)
}

// Tool wraps a remote application-level failure for the named capability.
func Tool(name, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrTool, name, detail)
}

// Unknown marks a request for a capability the session never advertised.
func Unknown(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownCapability, name)
}

// IsFatal reports whether err must unwind past the control loop instead of
// being absorbed as a failed result turn.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSetup) || errors.Is(err, ErrTurnBudget)
}
