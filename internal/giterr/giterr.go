// Package giterr defines the stable error taxonomy shared by every
// GitSocial component. Callers compare against the exported Code
// constants; humans read Error.Error().
package giterr

import "fmt"

// Code is a stable, machine-readable error identifier.
type Code string

const (
	ReadError        Code = "READ_ERROR"
	WriteError       Code = "WRITE_ERROR"
	CommitError      Code = "COMMIT_ERROR"
	RefError         Code = "REF_ERROR"
	DeleteError      Code = "DELETE_ERROR"
	EnumError        Code = "ENUM_ERROR"
	GitError         Code = "GIT_ERROR"
	FetchError       Code = "FETCH_ERROR"
	FetchFailed      Code = "FETCH_FAILED"
	EnsureDataError  Code = "ENSURE_DATA_ERROR"
	TimelineError    Code = "TIMELINE_ERROR"
	ListNotFound     Code = "LIST_NOT_FOUND"
	RepoError        Code = "REPO_ERROR"
	InitError        Code = "INIT_ERROR"
	ValidationError  Code = "VALIDATION_ERROR"
	UnknownError     Code = "UNKNOWN_ERROR"
)

// Error carries a stable code alongside a human-readable message and
// optional structured details, matching the {code, message, details?}
// shape every handler response surfaces.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with the given code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error, preserving its message.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error()}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// Is reports whether target is an *Error with the same Code, enabling
// errors.Is(err, giterr.New(giterr.ReadError, "")) style checks when
// callers only care about the code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return e.Code == t.Code
}
