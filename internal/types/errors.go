package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrPersistence         = errors.New("registry store read/write error")
	ErrStartupConfig       = errors.New("invalid startup config")
	// ErrConflict means another writer changed a registry snapshot since it was read.
	ErrConflict            = errors.New("registry changed concurrently")

	ErrInvalidBackend = errors.New("invalid backend")
)

func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}
