package services

// Typed errors returned by the service layer; handlers map them to HTTP
// status codes in one place.

type ValidationError struct{ Fields map[string]string }

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// SessionClosedError marks mutations attempted against an ended session.
// The caller must start a new session; retrying is pointless.
type SessionClosedError struct{ Message string }

func (e *SessionClosedError) Error() string { return e.Message }
