package pubsub

import (
	"errors"
	"fmt"
)

// TransportError reports that the gateway could not complete a request:
// connection failure, non-2xx status, or a truncated body.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pubsub: %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response body that is not the expected JSON document.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("pubsub: %s: decode: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a missing required argument. It is always
// returned before any network activity.
type ValidationError struct {
	Op    string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pubsub: %s: missing %s", e.Op, e.Field)
}

// ConfigurationError reports an unusable client configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pubsub: config %s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether err is a transport or decode failure, the two
// kinds the subscription loop absorbs and retries.
func IsRetryable(err error) bool {
	var te *TransportError
	var de *DecodeError
	return errors.As(err, &te) || errors.As(err, &de)
}
