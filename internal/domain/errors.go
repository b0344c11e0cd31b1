package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("server configuration error")
	ErrValidation       = errors.New("invalid request")
	ErrUpstream         = errors.New("provider request failed")
	ErrGenerationFailed = errors.New("generation failed")
	ErrTimeout          = errors.New("generation timed out")
)

// UpstreamError carries what the provider answered when a call did not succeed.
// StatusCode is zero for transport failures.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case len(e.Body) > 0:
		return fmt.Sprintf("%s: unexpected status code: %d, body: %s", e.Op, e.StatusCode, string(e.Body))
	default:
		return fmt.Sprintf("%s: unexpected status code: %d", e.Op, e.StatusCode)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Details returns the provider payload in a form that can be embedded in a JSON
// response: the raw JSON when the body is valid JSON, the text otherwise.
func (e *UpstreamError) Details() any {
	if len(e.Body) == 0 {
		return nil
	}
	if json.Valid(e.Body) {
		return json.RawMessage(e.Body)
	}
	return string(e.Body)
}

// Validationf builds an error that matches ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
