package extract

import (
	"fmt"
	"strings"
)

// DecodeErrorKind classifies failures while turning raw model text into JSON.
type DecodeErrorKind string

const (
	// DecodeMalformedJSON means the payload did not parse as JSON at all.
	DecodeMalformedJSON DecodeErrorKind = "malformed_json"
	// DecodeWrongShape means the payload parsed but had the wrong top-level
	// shape (object where an array was expected, or vice versa).
	DecodeWrongShape DecodeErrorKind = "wrong_shape"
)

// DecodeError reports that a model response could not be decoded.
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("decode %s", e.Kind)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationErrorKind classifies failures while validating one candidate.
type ValidationErrorKind string

const (
	ValidationMissingFields ValidationErrorKind = "missing_fields"
	ValidationInvalidType   ValidationErrorKind = "invalid_type"
	ValidationInvalidAmount ValidationErrorKind = "invalid_amount"
)

// ValidationError reports that a decoded candidate could not become a
// transaction. Fields is populated for ValidationMissingFields.
type ValidationError struct {
	Kind   ValidationErrorKind
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Fields) > 0:
		return fmt.Sprintf("validate %s: %s", e.Kind, strings.Join(e.Fields, ", "))
	case e.Err != nil:
		return fmt.Sprintf("validate %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("validate %s", e.Kind)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a failed call to the extraction service. It is the
// only error kind the orchestrator lets escape to callers: unlike malformed
// input it signals a transient problem worth retrying.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
