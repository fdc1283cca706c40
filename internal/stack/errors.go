package stack

import "errors"

// Domain errors for the stack package.
var (
	// ErrMalformedEvent is returned when an event payload cannot be
	// decoded or carries an out-of-range field.
	ErrMalformedEvent = errors.New("stack: malformed event")

	// ErrUnknownEvent is returned for event topics the bridge does not
	// recognise.
	ErrUnknownEvent = errors.New("stack: unknown event type")

	// ErrPublishFailed wraps broker errors raised while issuing a
	// command to the native stack.
	ErrPublishFailed = errors.New("stack: publish failed")
)
