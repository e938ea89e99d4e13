// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition indicates an application status change that the
// lifecycle state machine does not permit.
var ErrInvalidTransition = errors.New("invalid status transition")
