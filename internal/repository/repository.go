package repository

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (memory, postgres) inside this directory.

import "errors"

var (
	// ErrNotFound is returned when the referenced document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrIllegalTransition is returned when a status change would violate the
	// document lifecycle (uploaded -> processing -> completed|failed).
	ErrIllegalTransition = errors.New("illegal status transition")
)
