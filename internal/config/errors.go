package config

import "errors"

// Sentinel errors for configuration.
var (
	// ErrUnknownKey indicates a key that is not a recognized setting.
	ErrUnknownKey = errors.New("unknown config key")

	// ErrInvalidValue indicates a value that cannot be used for its key.
	ErrInvalidValue = errors.New("invalid config value")
)
