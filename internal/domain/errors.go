// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed input rejected at the API boundary.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates an operation against an entity that is not in
// the state the operation requires, such as approving a non-pending request
// or re-executing a terminal plan.
var ErrInvalidTransition = errors.New("invalid state transition")
