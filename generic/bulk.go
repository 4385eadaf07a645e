/*
bulk.go - BulkOperationCoordinator

PURPOSE:
  Applies one target status to many requests. Each item runs in its own
  transaction through the same path as a single UpdateStatus, so an
  authorization or ledger failure on one item is recorded and skipped
  without rolling back items that already succeeded.

ORDERING:
  Items run sequentially in the order given (duplicates dropped, first
  occurrence wins). Two items against the same account therefore see
  each other's effect: the second approval is checked against the
  balance the first one left.

CANCELLATION:
  If ctx is cancelled mid-batch, every item not yet started is reported
  as failed with ctx.Err(); finished items stay committed.
*/
package generic

import (
	"context"

	"go.uber.org/zap"
)

// StatusUpdater performs one status update for an actor whose roles are
// already resolved. *Engine implements it.
type StatusUpdater interface {
	UpdateStatusAs(ctx context.Context, id RequestID, roles RoleSnapshot, target Status, remarks string) (RequestRecord, error)
}

// BatchItem is the outcome of one request in a batch.
type BatchItem struct {
	RequestID RequestID
	Record    *RequestRecord // set on success
	Err       error          // set on failure
}

func (i BatchItem) OK() bool { return i.Err == nil }

// BatchResult aggregates a bulk update.
type BatchResult struct {
	Succeeded int
	Failed    int
	Items     []BatchItem
}

// Errors returns the failed items.
func (r BatchResult) Errors() []BatchItem {
	var out []BatchItem
	for _, item := range r.Items {
		if !item.OK() {
			out = append(out, item)
		}
	}
	return out
}

// BulkCoordinator runs batches against a StatusUpdater.
type BulkCoordinator struct {
	updater StatusUpdater
	roles   RoleResolver
	logger  *zap.Logger
}

func NewBulkCoordinator(updater StatusUpdater, roles RoleResolver, logger *zap.Logger) *BulkCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkCoordinator{updater: updater, roles: roles, logger: logger}
}

// Run applies target to every id. The returned error is non-nil only when
// the batch cannot start at all (bad target, unknown actor); item failures
// are reported in the result.
func (b *BulkCoordinator) Run(ctx context.Context, ids []RequestID, actorID string, target Status, remarks string) (BatchResult, error) {
	if !target.IsValid() {
		return BatchResult{}, invalid("status", "unknown status %q", target)
	}
	if len(ids) == 0 {
		return BatchResult{}, invalid("request_ids", "at least one request id is required")
	}
	if actorID == "" {
		return BatchResult{}, invalid("actor", "required")
	}
	roles, err := b.roles.ResolveRoles(ctx, actorID)
	if err != nil {
		return BatchResult{}, err
	}
	roles.ActorID = actorID

	var result BatchResult
	seen := make(map[RequestID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			result.add(BatchItem{RequestID: id, Err: err})
			continue
		}

		rec, err := b.updater.UpdateStatusAs(ctx, id, roles, target, remarks)
		if err != nil {
			b.logger.Warn("bulk item failed",
				zap.String("request_id", string(id)),
				zap.String("target", string(target)),
				zap.String("actor", actorID),
				zap.Error(err))
			result.add(BatchItem{RequestID: id, Err: err})
			continue
		}
		result.add(BatchItem{RequestID: id, Record: &rec})
	}

	b.logger.Info("bulk status update finished",
		zap.String("target", string(target)),
		zap.String("actor", actorID),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (r *BatchResult) add(item BatchItem) {
	if item.OK() {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Items = append(r.Items, item)
}

// BulkUpdateStatus applies target to every id as actorID.
func (e *Engine) BulkUpdateStatus(ctx context.Context, ids []RequestID, actorID string, target Status, remarks string) (BatchResult, error) {
	return NewBulkCoordinator(e, e.roles, e.logger.Named("bulk")).Run(ctx, ids, actorID, target, remarks)
}
