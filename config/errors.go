package config

import "errors"

var (
	// ErrMissingValue indicates a required setting is empty.
	ErrMissingValue = errors.New("config: missing required value")

	// ErrInvalidValue indicates a setting failed validation.
	ErrInvalidValue = errors.New("config: invalid value")
)
