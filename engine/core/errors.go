package core

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrNoSuitableDevice  = errors.New("no physical device meets the renderer requirements")
	ErrMissingLayer      = errors.New("required validation layer is missing")
	ErrInvalidSubmission = errors.New("invalid queue submission")
	ErrDestroyed         = errors.New("resource already destroyed")
	ErrPathEscapesRoot   = errors.New("path escapes asset root")
)

// Errorf builds an error, logs it at error level and returns it.
func Errorf(format string, args ...interface{}) error {
	err := errors.Newf(format, args...)
	LogError(err.Error())
	return err
}

// Wrapf annotates err, logs the result and returns it. A nil err stays nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, format, args...)
	LogError(wrapped.Error())
	return wrapped
}
