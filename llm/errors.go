package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrGenerationUnavailable is returned by Generator when the backend call
// fails for any reason.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// CallError is a failed backend call, marked retryable or not. Status is
// the HTTP status when the endpoint answered, 0 otherwise.
type CallError struct {
	Status    int
	Retryable bool
	err       error
}

func (e *CallError) Error() string { return e.err.Error() }

func (e *CallError) Unwrap() error { return e.err }

func transient(err error) error { return &CallError{Retryable: true, err: err} }

func fatal(err error) error { return &CallError{err: err} }

// statusError builds the error for a non-200 answer. 429 and 5xx are
// retryable; everything else (bad request, auth) is not.
func statusError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	return &CallError{
		Status:    status,
		Retryable: status == http.StatusTooManyRequests || status >= 500,
		err:       fmt.Errorf("generation API error (status %d): %s", status, snippet),
	}
}

// IsTransient reports whether a retry of the call might succeed.
func IsTransient(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Retryable
}

// IsFatal reports whether the call failed permanently.
func IsFatal(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && !ce.Retryable
}
