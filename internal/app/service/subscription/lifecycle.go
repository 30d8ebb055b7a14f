package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

// The functions below run inside a transaction owned by the caller and take the
// transaction-bound store explicitly.

func loadForUpdate(ctx context.Context, tx store.Store, subscriptionID string, requester *types.Requester) (*models.Subscription, error) {
	sub, err := tx.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, mapNotFound(err, "Subscription not found")
	}
	if !requester.CanAccess(sub.UserID) {
		return nil, apperror.Forbidden("Not enough permissions")
	}
	return sub, nil
}

func activePlan(ctx context.Context, tx store.Store, planID string) (*models.Plan, error) {
	plan, err := tx.GetPlan(ctx, planID)
	if err != nil {
		return nil, mapNotFound(err, "Plan not found")
	}
	if !plan.IsActive {
		return nil, apperror.Conflict("Plan is not active")
	}
	return plan, nil
}

func createInTx(ctx context.Context, tx store.Store, now time.Time, userID, planID string) (*Change, error) {
	plan, err := activePlan(ctx, tx, planID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.GetUser(ctx, userID); err != nil {
		return nil, mapNotFound(err, "User not found")
	}
	_, err = tx.GetActiveSubscription(ctx, userID)
	switch {
	case err == nil:
		return nil, apperror.Conflict("User already has an active subscription")
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	sub := &models.Subscription{
		ID:        tool.GenerateUUIDV7(),
		UserID:    userID,
		PlanID:    plan.ID,
		StartDate: now,
		EndDate:   addDays(now, plan.DurationDays),
		Status:    types.SubscriptionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreateSubscription(ctx, sub); err != nil {
		// a concurrent create won the single-active index
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperror.Conflict("User already has an active subscription")
		}
		return nil, err
	}
	return &Change{Reason: types.SubscriptionChangeReasonCreate, After: sub.Clone(), At: now}, nil
}

func changePlanInTx(ctx context.Context, tx store.Store, now time.Time, sub *models.Subscription, newPlanID string) (*Change, error) {
	plan, err := activePlan(ctx, tx, newPlanID)
	if err != nil {
		return nil, err
	}
	before := sub.Clone()
	left := daysLeft(sub.EndDate, now)
	sub.PlanID = plan.ID
	sub.EndDate = addDays(now, plan.DurationDays+left)
	sub.UpdatedAt = now
	if err := tx.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("change plan: %w", err)
	}
	return &Change{Reason: types.SubscriptionChangeReasonChangePlan, Before: before, After: sub.Clone(), At: now}, nil
}

func setStatusInTx(ctx context.Context, tx store.Store, now time.Time, sub *models.Subscription, to types.SubscriptionStatus, requester *types.Requester, reason types.SubscriptionChangeReason) (*Change, error) {
	from := sub.Status
	rule, ok := ruleFor(from, to)
	switch {
	case ok:
	case from.IsTerminal() || from == to:
		return nil, apperror.Conflict("Subscription is already %s", from)
	case to == types.SubscriptionStatusActive:
		return nil, apperror.Conflict("Subscription cannot be reactivated, create a new one")
	default:
		return nil, apperror.Conflict("Cannot change subscription status from %s to %s", from, to)
	}
	if rule.adminOnly && (requester == nil || !requester.IsAdmin) {
		return nil, apperror.Forbidden("Only admins can set status %s", to)
	}

	before := sub.Clone()
	sub.Status = to
	if to == types.SubscriptionStatusCancelled {
		cancelledAt := now
		sub.CancelledAt = &cancelledAt
	}
	sub.UpdatedAt = now
	if err := tx.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	return &Change{Reason: reason, Before: before, After: sub.Clone(), Actor: requester.ActorID(), At: now}, nil
}

func expireInTx(ctx context.Context, tx store.Store, now time.Time, sub *models.Subscription) (*Change, error) {
	before := sub.Clone()
	sub.Status = types.SubscriptionStatusExpired
	sub.UpdatedAt = now
	if err := tx.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("expire subscription %s: %w", sub.ID, err)
	}
	return &Change{Reason: types.SubscriptionChangeReasonExpire, Before: before, After: sub.Clone(), Actor: "system", At: now}, nil
}
