package subscription

import (
	"context"
	"time"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/logctx"
)

// SweepExpired expires every active subscription whose end date has passed, as one
// batch. It returns the number of subscriptions expired. On a persistence failure the
// whole batch is rolled back and 0 is returned with an Internal error.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	defer s.metrics.ObserveDuration("sweep", "expire", time.Now())
	now := s.now()
	var changes []Change
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		changes = changes[:0]
		overdue, err := tx.ListOverdueSubscriptions(ctx, now)
		if err != nil {
			return err
		}
		for _, sub := range overdue {
			c, err := expireInTx(ctx, tx, now, sub)
			if err != nil {
				return err
			}
			changes = append(changes, *c)
		}
		return nil
	})
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("expiry sweep rolled back", "err", err)
		return 0, apperror.Internal(err, "expiry sweep failed")
	}
	s.dispatch(ctx, changes)
	return len(changes), nil
}
