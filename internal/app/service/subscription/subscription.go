package subscription

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/logctx"
	"github.com/fatflowers/subscriptions/pkg/metrics"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

// Change describes one committed subscription mutation. Before is nil on create.
type Change struct {
	Reason types.SubscriptionChangeReason
	Before *models.Subscription
	After  *models.Subscription
	Actor  string
	At     time.Time
}

// ChangeHook is notified after a lifecycle transaction commits. Implementations
// must not block; the context is detached from the request.
type ChangeHook interface {
	OnSubscriptionChange(ctx context.Context, c Change)
}

// Service is the subscription lifecycle manager. It keeps no mutable state between
// calls; every operation is one transaction over the store.
type Service struct {
	store   store.Store
	clock   tool.Clock
	log     *zap.SugaredLogger
	metrics *metrics.Business
	hooks   []ChangeHook
}

func NewService(st store.Store, clock tool.Clock, log *zap.SugaredLogger, m *metrics.Business, hooks []ChangeHook) *Service {
	return &Service{store: st, clock: clock, log: log, metrics: m, hooks: hooks}
}

// Detail is a subscription with its plan and user fetched alongside.
type Detail struct {
	*models.Subscription
	Plan *models.Plan `json:"plan"`
	User *models.User `json:"user"`
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// run executes fn in one transaction and dispatches the resulting changes after commit.
func (s *Service) run(ctx context.Context, op string, fn func(tx store.Store, now time.Time) ([]Change, error)) ([]Change, error) {
	defer s.metrics.ObserveDuration("subscription", op, time.Now())
	now := s.now()
	var changes []Change
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		changes, err = fn(tx, now)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "%s failed", op)
	}
	s.dispatch(ctx, changes)
	return changes, nil
}

func (s *Service) dispatch(ctx context.Context, changes []Change) {
	if len(changes) == 0 {
		return
	}
	hookCtx := context.WithoutCancel(ctx)
	lg := logctx.FromCtx(ctx, s.log)
	for _, c := range changes {
		from := ""
		if c.Before != nil {
			from = string(c.Before.Status)
		}
		if from != string(c.After.Status) {
			s.metrics.ObserveTransition(from, string(c.After.Status))
		}
		lg.Infow("subscription changed",
			"subscription_id", c.After.ID,
			"user_id", c.After.UserID,
			"reason", c.Reason,
			"actor", c.Actor,
			"status", c.After.Status,
		)
		for _, h := range s.hooks {
			h.OnSubscriptionChange(hookCtx, c)
		}
	}
}

// asAppError keeps typed errors and wraps anything else as Internal.
func asAppError(err error, format string, args ...any) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(err, format, args...)
}

// mapNotFound turns store.ErrNotFound into a NotFound carrying msg.
func mapNotFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperror.NotFound("%s", msg)
	}
	return err
}

func lastAfter(changes []Change) *models.Subscription {
	if len(changes) == 0 {
		return nil
	}
	return changes[len(changes)-1].After
}

// Create starts a new active subscription for userID on planID.
func (s *Service) Create(ctx context.Context, userID, planID string, requester *types.Requester) (*models.Subscription, error) {
	if requester != nil && !requester.CanAccess(userID) {
		return nil, apperror.Forbidden("Not enough permissions")
	}
	changes, err := s.run(ctx, "create", func(tx store.Store, now time.Time) ([]Change, error) {
		c, err := createInTx(ctx, tx, now, userID, planID)
		if err != nil {
			return nil, err
		}
		c.Actor = requester.ActorID()
		return []Change{*c}, nil
	})
	if err != nil {
		return nil, err
	}
	return lastAfter(changes), nil
}

// ChangePlan moves the subscription to newPlanID, carrying over the whole days left.
func (s *Service) ChangePlan(ctx context.Context, subscriptionID, newPlanID string, requester *types.Requester) (*models.Subscription, error) {
	changes, err := s.run(ctx, "change_plan", func(tx store.Store, now time.Time) ([]Change, error) {
		sub, err := loadForUpdate(ctx, tx, subscriptionID, requester)
		if err != nil {
			return nil, err
		}
		c, err := changePlanInTx(ctx, tx, now, sub, newPlanID)
		if err != nil {
			return nil, err
		}
		c.Actor = requester.ActorID()
		return []Change{*c}, nil
	})
	if err != nil {
		return nil, err
	}
	return lastAfter(changes), nil
}

// SetStatus applies a status transition allowed by the transition table.
func (s *Service) SetStatus(ctx context.Context, subscriptionID string, status types.SubscriptionStatus, requester *types.Requester) (*models.Subscription, error) {
	if _, err := types.ParseSubscriptionStatus(string(status)); err != nil {
		return nil, apperror.BadRequest("%s", err.Error())
	}
	changes, err := s.run(ctx, "set_status", func(tx store.Store, now time.Time) ([]Change, error) {
		sub, err := loadForUpdate(ctx, tx, subscriptionID, requester)
		if err != nil {
			return nil, err
		}
		c, err := setStatusInTx(ctx, tx, now, sub, status, requester, types.SubscriptionChangeReasonStatusUpdate)
		if err != nil {
			return nil, err
		}
		return []Change{*c}, nil
	})
	if err != nil {
		return nil, err
	}
	return lastAfter(changes), nil
}

// Cancel ends an active subscription immediately.
func (s *Service) Cancel(ctx context.Context, subscriptionID string, requester *types.Requester) (*models.Subscription, error) {
	changes, err := s.run(ctx, "cancel", func(tx store.Store, now time.Time) ([]Change, error) {
		sub, err := loadForUpdate(ctx, tx, subscriptionID, requester)
		if err != nil {
			return nil, err
		}
		c, err := setStatusInTx(ctx, tx, now, sub, types.SubscriptionStatusCancelled, requester, types.SubscriptionChangeReasonCancel)
		if err != nil {
			return nil, err
		}
		return []Change{*c}, nil
	})
	if err != nil {
		return nil, err
	}
	return lastAfter(changes), nil
}

// UpdateRequest carries the optional fields of a subscription update.
type UpdateRequest struct {
	PlanID *string
	Status *types.SubscriptionStatus
}

// Update applies a plan change and then a status change in one transaction.
func (s *Service) Update(ctx context.Context, subscriptionID string, req UpdateRequest, requester *types.Requester) (*models.Subscription, error) {
	if req.Status != nil {
		if _, err := types.ParseSubscriptionStatus(string(*req.Status)); err != nil {
			return nil, apperror.BadRequest("%s", err.Error())
		}
	}
	var current *models.Subscription
	changes, err := s.run(ctx, "update", func(tx store.Store, now time.Time) ([]Change, error) {
		sub, err := loadForUpdate(ctx, tx, subscriptionID, requester)
		if err != nil {
			return nil, err
		}
		current = sub
		var changes []Change
		if req.PlanID != nil {
			c, err := changePlanInTx(ctx, tx, now, sub, *req.PlanID)
			if err != nil {
				return nil, err
			}
			c.Actor = requester.ActorID()
			changes = append(changes, *c)
			sub = c.After.Clone()
		}
		if req.Status != nil {
			c, err := setStatusInTx(ctx, tx, now, sub, *req.Status, requester, types.SubscriptionChangeReasonStatusUpdate)
			if err != nil {
				return nil, err
			}
			changes = append(changes, *c)
		}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	if after := lastAfter(changes); after != nil {
		return after, nil
	}
	return current, nil
}

// LookupActive returns the user's single active subscription.
func (s *Service) LookupActive(ctx context.Context, userID string, requester *types.Requester) (*models.Subscription, error) {
	if requester != nil && !requester.CanAccess(userID) {
		return nil, apperror.Forbidden("Not enough permissions")
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	sub, err := s.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, asAppError(mapNotFound(err, "No active subscription found"), "lookup active subscription")
	}
	return sub, nil
}
