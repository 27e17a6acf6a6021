// Package apperror defines the error taxonomy shared by the pipeline, the analysis client
// and the HTTP layer. Every kind is either a client fault or a server fault.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindMissingInput
	KindUnsupportedFormat
	KindUndecodableImage
	KindPayloadTooLarge
	KindBadRequest
	KindNotFound
	KindMethodNotAllowed
	KindBackendUnavailable
	KindBackendInternal
)

var kindNames = map[Kind]string{
	KindInternal:           "INTERNAL_ERROR",
	KindMissingInput:       "MISSING_INPUT",
	KindUnsupportedFormat:  "UNSUPPORTED_FORMAT",
	KindUndecodableImage:   "UNDECODABLE_IMAGE",
	KindPayloadTooLarge:    "PAYLOAD_TOO_LARGE",
	KindBadRequest:         "BAD_REQUEST",
	KindNotFound:           "NOT_FOUND",
	KindMethodNotAllowed:   "METHOD_NOT_ALLOWED",
	KindBackendUnavailable: "BACKEND_UNAVAILABLE",
	KindBackendInternal:    "BACKEND_INTERNAL",
}

// String returns the machine-readable code for the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindInternal]
}

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindMissingInput, KindUnsupportedFormat, KindUndecodableImage, KindBadRequest:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// ClientFault reports whether the caller's input caused the failure.
func (k Kind) ClientFault() bool {
	return k.Status() < http.StatusInternalServerError
}

// Error is a classified failure. Message is safe to show to callers; Err keeps the cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// New builds a classified error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsClientFault reports whether err is classified as caused by caller input.
func IsClientFault(err error) bool {
	return KindOf(err).ClientFault()
}

// PayloadTooLarge builds the size-limit fault for an upload cap of max bytes.
func PayloadTooLarge(max int64) *Error {
	return New(KindPayloadTooLarge, "File too large. Maximum size allowed is "+humanSize(max))
}

func humanSize(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%dMB", n/mb)
	case n >= mb:
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	case n >= kb && n%kb == 0:
		return fmt.Sprintf("%dKB", n/kb)
	case n >= kb:
		return fmt.Sprintf("%.1fKB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
