// Package domain holds the errors shared between the transport and infrastructure layers.
package domain

import "errors"

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that tokens have not been loaded yet,
	// typically while Postgres is still starting.
	ErrTokenStoreNotReady = errors.New("token store not ready")
	// ErrQuoteNotFound is returned when a saved quote id is unknown for a profile.
	ErrQuoteNotFound = errors.New("saved quote not found")
	// ErrQuoteNameRequired is returned when saving a quote without a name.
	ErrQuoteNameRequired = errors.New("quote name is required")
	// ErrStoreUnavailable is returned when no key-value store is configured.
	ErrStoreUnavailable = errors.New("key-value store unavailable")
)
