package proctor

import "errors"

var (
	ErrSessionNotFound    = errors.New("proctor: session not found")
	ErrSessionExists      = errors.New("proctor: student already has an active session")
	ErrInvalidState       = errors.New("proctor: invalid session state for operation")
	ErrSessionLocked      = errors.New("proctor: session locked")
	ErrEnrollmentRequired = errors.New("proctor: no stored enrollment for student")
	ErrIdentityMismatch   = errors.New("proctor: captured face does not match enrollment")
	ErrNetworkTimeout     = errors.New("proctor: network operation timed out")
	ErrUploadFailure      = errors.New("proctor: evidence upload failed")
)
