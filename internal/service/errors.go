package service

import "errors"

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")
	// ErrTripTerminal means the trip exists but already reached a terminal
	// status. Distinct from ErrNotFound so callers can tell "wrong id"
	// from "trip already ended".
	ErrTripTerminal = errors.New("trip is no longer active")
)
