package security

import "errors"

var (
	ErrAccessDenied         = errors.New("access denied")
	ErrAuthenticationFailed = errors.New("authentication failed")
)
