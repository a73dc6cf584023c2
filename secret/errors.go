package secret

import "errors"

var (
	// ErrMissingEnv indicates ${VAR} referenced an unset variable.
	ErrMissingEnv = errors.New("secret: missing required environment variables")

	// ErrUnknownProvider indicates a reference named an unregistered provider.
	ErrUnknownProvider = errors.New("secret: provider not registered")

	// ErrNotFound indicates a provider has no value for the reference.
	ErrNotFound = errors.New("secret: not found")

	// ErrEmptyValue indicates a strict resolver received an empty secret.
	ErrEmptyValue = errors.New("secret: empty value")

	// ErrInvalidRef indicates a malformed reference.
	ErrInvalidRef = errors.New("secret: invalid reference")
)
