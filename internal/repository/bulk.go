package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aryan0dhankhar/tenantcore/internal/domain"
	"github.com/aryan0dhankhar/tenantcore/internal/observability/metrics"
)

// BulkOptions controls bulk operations. By default a bulk call is atomic: the first
// failure rolls back every item. ContinueOnError applies each item independently.
type BulkOptions struct {
	ContinueOnError bool
}

// BulkResult reports per-item outcomes of a bulk call.
type BulkResult[R any] struct {
	Successful   []R                `json:"successful"`
	Failed       []domain.ItemError `json:"failed"`
	SuccessCount int                `json:"success_count"`
	FailCount    int                `json:"fail_count"`
}

// UpdateItem pairs a record id with the patch to apply to it.
type UpdateItem[T any] struct {
	ID    string
	Patch func(*T) error
}

// BulkCreate inserts every record.
func (r *Repository[T]) BulkCreate(ctx context.Context, recs []*T, opts BulkOptions) (*BulkResult[*T], error) {
	return runBulk(ctx, r, "create", recs, opts, func(ctx context.Context, repo *Repository[T], rec *T) (*T, error) {
		return repo.Create(ctx, rec)
	})
}

// BulkUpdate patches every listed record.
func (r *Repository[T]) BulkUpdate(ctx context.Context, items []UpdateItem[T], opts BulkOptions) (*BulkResult[*T], error) {
	return runBulk(ctx, r, "update", items, opts, func(ctx context.Context, repo *Repository[T], it UpdateItem[T]) (*T, error) {
		return repo.Update(ctx, it.ID, it.Patch)
	})
}

// BulkRemove removes every listed id and reports the ids that were removed.
func (r *Repository[T]) BulkRemove(ctx context.Context, ids []string, opts BulkOptions) (*BulkResult[string], error) {
	return runBulk(ctx, r, "remove", ids, opts, func(ctx context.Context, repo *Repository[T], id string) (string, error) {
		return id, repo.Remove(ctx, id)
	})
}

type bulkApply[T, I, R any] func(ctx context.Context, repo *Repository[T], item I) (R, error)

func runBulk[T, I, R any](ctx context.Context, r *Repository[T], op string, items []I, opts BulkOptions, apply bulkApply[T, I, R]) (res *BulkResult[R], err error) {
	start := time.Now()
	defer func() {
		result := "success"
		switch {
		case err != nil:
			result = "rolled_back"
		case res != nil && res.FailCount > 0:
			result = "partial"
		}
		metrics.ObserveBulk(r.schema.Table, op, result, len(items), time.Since(start))
	}()

	if opts.ContinueOnError {
		return bestEffort(ctx, r, items, apply), nil
	}
	return atomic(ctx, r, op, items, apply)
}

func bestEffort[T, I, R any](ctx context.Context, r *Repository[T], items []I, apply bulkApply[T, I, R]) *BulkResult[R] {
	res := &BulkResult[R]{Successful: []R{}, Failed: []domain.ItemError{}}
	for i, it := range items {
		out, err := apply(ctx, r, it)
		if err != nil {
			res.Failed = append(res.Failed, domain.ItemError{Index: i, Err: err})
			continue
		}
		res.Successful = append(res.Successful, out)
	}
	res.SuccessCount = len(res.Successful)
	res.FailCount = len(res.Failed)
	return res
}

func atomic[T, I, R any](ctx context.Context, r *Repository[T], op string, items []I, apply bulkApply[T, I, R]) (*BulkResult[R], error) {
	var (
		done      []R
		failedAt  = -1
		itemError error
	)
	err := r.ExecuteTransaction(ctx, func(ctx context.Context, repo *Repository[T]) error {
		done = done[:0]
		for i, it := range items {
			out, err := apply(ctx, repo, it)
			if err != nil {
				failedAt, itemError = i, err
				return err
			}
			done = append(done, out)
		}
		return nil
	})
	if err == nil {
		return &BulkResult[R]{
			Successful:   done,
			Failed:       []domain.ItemError{},
			SuccessCount: len(done),
		}, nil
	}

	// Nothing was persisted: every item is reported, the culprit with its own error.
	bulkErr := &domain.BulkOperationError{Op: op, Items: make([]domain.ItemError, len(items))}
	for i := range items {
		cause := domain.ErrRolledBack
		switch {
		case i == failedAt:
			cause = itemError
		case failedAt < 0:
			cause = errors.Join(domain.ErrRolledBack, err)
		}
		bulkErr.Items[i] = domain.ItemError{Index: i, Err: cause}
	}
	return nil, bulkErr
}
