// Package approval implements the approval workflow engine: rule matching,
// the request state machine, escalation and delegation, and bulk decisions.
package approval

import "errors"

// Business errors are expected control flow. Callers match them with
// errors.Is; they are returned, not logged as incidents.
var (
	// ErrNotFound means the rule, request, delegation or config is absent.
	ErrNotFound = errors.New("not found")
	// ErrNotPending means a transition was attempted on a request that is no
	// longer live (already approved, rejected or auto-approved).
	ErrNotPending = errors.New("request is not pending")
	// ErrUnauthorized means the actor is not in the current approver set and
	// no active delegation covers them.
	ErrUnauthorized = errors.New("actor is not authorized for this request")
	// ErrMaxEscalationReached means the escalation chain has no further tier.
	ErrMaxEscalationReached = errors.New("maximum escalation level reached")
	// ErrNoEscalationChain means the owning rule defines no escalation chain.
	ErrNoEscalationChain = errors.New("no escalation chain defined")
	// ErrValidation means the input was malformed; the wrapping error
	// carries the detail.
	ErrValidation = errors.New("validation failed")
)
