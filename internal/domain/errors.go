package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnknownTool     = errors.New("unknown enhancement tool")
	ErrInvalidUpload   = errors.New("invalid upload")
	ErrJobNotRetryable = errors.New("job is not in a retryable state")
	ErrProviderFailure = errors.New("provider failure")
)
