package enhance

import "errors"

// TransientError marks a provider failure as retryable: timeouts, 5xx
// responses, connection resets. Validation failures and provider-side
// rejections of the input are returned bare and never retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so WithRetry will retry it. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or any wrapped error) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
