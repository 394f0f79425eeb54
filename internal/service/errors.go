package service

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the contribution engine. Callers match them
// with errors.Is.
var (
	// ErrNotFound indicates the referenced goal, pledge or product does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidGoal indicates a malformed goal definition (non-positive target).
	ErrInvalidGoal = errors.New("invalid goal")

	// ErrInvalidPledge indicates a policy-violating pledge submission: bad
	// amount, self-contribution, or a goal that is closed or not accepting
	// contributions.
	ErrInvalidPledge = errors.New("invalid pledge")

	// ErrInvalidState indicates an operation attempted on a pledge or goal in
	// the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientInventory indicates materialization aborted because the
	// target product ran out of stock. The goal stays open and is retryable.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrConcurrencyConflict indicates the per-goal lock could not be
	// acquired. Transient; safe to retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// ErrAlreadyConverted is a refinement of ErrInvalidState for materialization
// attempts on a closed goal; errors.Is(err, ErrInvalidState) also holds.
var ErrAlreadyConverted = fmt.Errorf("goal already converted: %w", ErrInvalidState)
