package subscription

import (
	"context"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/types"
)

// Get returns a subscription with its plan and user, fetched explicitly.
func (s *Service) Get(ctx context.Context, subscriptionID string, requester *types.Requester) (*Detail, error) {
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, asAppError(mapNotFound(err, "Subscription not found"), "get subscription")
	}
	if !requester.CanAccess(sub.UserID) {
		return nil, apperror.Forbidden("Not enough permissions")
	}
	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, asAppError(mapNotFound(err, "Plan not found"), "get subscription plan")
	}
	user, err := s.store.GetUser(ctx, sub.UserID)
	if err != nil {
		return nil, asAppError(mapNotFound(err, "User not found"), "get subscription user")
	}
	return &Detail{Subscription: sub, Plan: plan, User: user}, nil
}

// ListForUser lists a user's subscriptions, optionally filtered by status.
func (s *Service) ListForUser(ctx context.Context, userID string, status types.SubscriptionStatus, page types.Page, requester *types.Requester) ([]*models.Subscription, error) {
	if !requester.CanAccess(userID) {
		return nil, apperror.Forbidden("Not enough permissions")
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.list(ctx, store.SubscriptionQuery{UserID: userID, Status: status, Page: page})
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return asAppError(mapNotFound(err, "User not found"), "get user")
	}
	return nil
}

// List lists all subscriptions. Admin only.
func (s *Service) List(ctx context.Context, status types.SubscriptionStatus, page types.Page, requester *types.Requester) ([]*models.Subscription, error) {
	if requester == nil || !requester.IsAdmin {
		return nil, apperror.Forbidden("Not enough permissions")
	}
	return s.list(ctx, store.SubscriptionQuery{Status: status, Page: page})
}

func (s *Service) list(ctx context.Context, q store.SubscriptionQuery) ([]*models.Subscription, error) {
	if q.Status != "" {
		if _, err := types.ParseSubscriptionStatus(string(q.Status)); err != nil {
			return nil, apperror.BadRequest("%s", err.Error())
		}
	}
	subs, err := s.store.ListSubscriptions(ctx, q)
	if err != nil {
		return nil, apperror.Internal(err, "list subscriptions")
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}
	return subs, nil
}
