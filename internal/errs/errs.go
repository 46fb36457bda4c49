package errs

import "errors"

// Domain sentinel errors, mapped to HTTP codes in handlers.
var (
	ErrSessionNotActive = errors.New("session not active")
	ErrRequestNotFound  = errors.New("admission request not found")
	ErrPresenterBusy    = errors.New("another participant is presenting")
	ErrMediaLocked      = errors.New("media is locked by host")
)
