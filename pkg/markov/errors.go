package markov

import (
	"errors"
	"fmt"

	"markovchain/pkg/content"
)

// APIError is returned when the service answers with a non-2xx status.
// Body holds the response body verbatim.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("markov api error: status %d, body = %s", e.Status, e.Body)
}

// TransportError wraps a failure of the underlying HTTP stack.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("markov %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SerializationError wraps a JSON encoding failure.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("markov: encode payload: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Kind classifies errors returned by this package.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindTransport
	KindSerialization
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindSerialization:
		return "serialization"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// KindOf reports which failure class err belongs to. Errors raised before a
// request is built, such as a failing TokenSigner, report KindUnknown.
func KindOf(err error) Kind {
	var (
		apiErr       *APIError
		transportErr *TransportError
		encodeErr    *SerializationError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &encodeErr):
		return KindSerialization
	case errors.Is(err, content.ErrInvalid):
		return KindValidation
	default:
		return KindUnknown
	}
}
