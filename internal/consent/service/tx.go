package service

import (
	"context"
	"time"

	"healthconsent/internal/consent/metrics"
	"healthconsent/internal/consent/models"
	id "healthconsent/pkg/domain"
	dErrors "healthconsent/pkg/domain-errors"
	platformsync "healthconsent/pkg/platform/sync"
)

// ConsentStoreTx is the transactional boundary for mutations of one
// (patient, facility) pair. Implementations serialize callers for the same
// pair: a database transaction with an advisory lock, or in memory a sharded mutex.
type ConsentStoreTx interface {
	RunInTx(ctx context.Context, patientID id.PatientID, facilityID id.FacilityID, fn func(ctx context.Context, store Store) error) error
}

// DefaultTxTimeout bounds a consent transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// ShardedTx serializes pair mutations in process. Writes are not rolled back
// on error, so fn must perform its fallible checks before its first write.
type ShardedTx struct {
	mu      *platformsync.ShardedMutex
	store   Store
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewShardedTx(store Store, timeout time.Duration, m *metrics.Metrics) *ShardedTx {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &ShardedTx{
		mu:      platformsync.NewShardedMutex(0),
		store:   store,
		timeout: timeout,
		metrics: m,
	}
}

func (t *ShardedTx) RunInTx(ctx context.Context, patientID id.PatientID, facilityID id.FacilityID, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	key := models.PairKey(patientID, facilityID)
	lockStart := time.Now()
	t.mu.Lock(key)
	t.metrics.ObserveShardLockWait(time.Since(lockStart))
	defer t.mu.Unlock(key)

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.store)
}
