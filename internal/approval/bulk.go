package approval

import (
	"context"
	"errors"
	"sync"

	"gitlab.com/yelinaung/approval-engine/internal/logger"
)

// Failure kinds reported per request in a bulk result.
const (
	FailureNotFound     = "not_found"
	FailureNotPending   = "not_pending"
	FailureUnauthorized = "unauthorized"
	FailureValidation   = "validation"
	FailureInternal     = "internal"
)

// BulkFailure records why one request in a batch could not be decided.
type BulkFailure struct {
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
}

// BulkResult is the per-item outcome of a bulk decision. Order within each
// slice follows the input order.
type BulkResult struct {
	Successful []string      `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// BulkDecide applies one action to many requests as the same actor. Items are
// independent: each failure is recorded and the rest of the batch proceeds.
// Items run concurrently up to the engine's configured width.
func (e *Engine) BulkDecide(ctx context.Context, requestIDs []string, actorID int64, action, comments string) (*BulkResult, error) {
	outcomes := make([]error, len(requestIDs))

	sem := make(chan struct{}, e.bulkConcurrency)
	var wg sync.WaitGroup
	for i, id := range requestIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			_, err := e.Decide(ctx, id, actorID, action, comments)
			outcomes[i] = err
		}(i, id)
	}
	wg.Wait()

	result := &BulkResult{}
	for i, id := range requestIDs {
		if outcomes[i] == nil {
			result.Successful = append(result.Successful, id)
			continue
		}
		result.Failed = append(result.Failed, BulkFailure{
			RequestID: id,
			Kind:      classifyFailure(outcomes[i]),
		})
	}

	logger.Log.Info().
		Str("actor_hash", logger.HashActorID(actorID)).
		Str("action", action).
		Int("total", len(requestIDs)).
		Int("successful", len(result.Successful)).
		Int("failed", len(result.Failed)).
		Msg("Bulk decision processed")
	return result, nil
}

func classifyFailure(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrNotPending):
		return FailureNotPending
	case errors.Is(err, ErrUnauthorized):
		return FailureUnauthorized
	case errors.Is(err, ErrValidation):
		return FailureValidation
	default:
		return FailureInternal
	}
}
