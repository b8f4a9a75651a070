package settings

import "errors"

var (
	ErrNotFound       = errors.New("settings not found")
	ErrFailedToLoad   = errors.New("failed to load settings")
	ErrFailedToSave   = errors.New("failed to save settings")
	ErrInvalidSection = errors.New("invalid settings")
)
