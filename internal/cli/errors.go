package cli

import "github.com/fmueller/dictado/internal/session"

// userError prints as the end-user message of its cause while keeping the
// cause matchable with errors.Is and errors.As.
type userError struct {
	err error
}

func (e userError) Error() string {
	return session.UserMessage(e.err)
}

func (e userError) Unwrap() error {
	return e.err
}

func friendly(err error) error {
	if err == nil {
		return nil
	}
	return userError{err: err}
}
