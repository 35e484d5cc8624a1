// Package apierr centralizes the HTTP error taxonomy so every handler
// in internal/api reports failures the same way.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Kind classifies a failure per the taxonomy in the service spec.
type Kind int

const (
	KindInput Kind = iota
	KindPrecondition
	KindAuth
	KindResource
	KindInternal
)

// Error is a structured, HTTP-mappable failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, status int, msg string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: msg, Cause: cause}
}

func Input(msg string) *Error                  { return newErr(KindInput, http.StatusBadRequest, msg, nil) }
func InputWrap(msg string, err error) *Error   { return newErr(KindInput, http.StatusBadRequest, msg, err) }
func Precondition(msg string) *Error           { return newErr(KindPrecondition, http.StatusBadRequest, msg, nil) }
func Auth(msg string) *Error                   { return newErr(KindAuth, http.StatusUnauthorized, msg, nil) }
func Resource(msg string) *Error               { return newErr(KindResource, http.StatusRequestEntityTooLarge, msg, nil) }
func Internal(msg string) *Error               { return newErr(KindInternal, http.StatusInternalServerError, msg, nil) }
func InternalWrap(msg string, err error) *Error {
	return newErr(KindInternal, http.StatusInternalServerError, msg, err)
}
func NotFound(msg string) *Error { return newErr(KindInput, http.StatusNotFound, msg, nil) }
func Forbidden(msg string) *Error {
	return newErr(KindAuth, http.StatusForbidden, msg, nil)
}

// WriteJSON writes err as a `{"error": "..."}` JSON body with the
// status code implied by its Kind. Non-*Error values are treated as
// opaque internal failures.
func WriteJSON(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = Internal(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": apiErr.Error()})
}

// WriteRaw writes a plain-text body with an explicit status code, used
// for the compile pipeline's verbatim toolchain-log failure responses.
func WriteRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
