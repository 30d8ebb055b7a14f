package types

import (
	"fmt"
	"slices"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

var subscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
}

// ParseSubscriptionStatus validates a raw status value coming from a request.
func ParseSubscriptionStatus(raw string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(raw)
	if !slices.Contains(subscriptionStatuses, s) {
		return "", fmt.Errorf("unknown subscription status: %q", raw)
	}
	return s, nil
}

// IsTerminal reports whether no lifecycle transition may leave the status.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCreate       SubscriptionChangeReason = "create"
	SubscriptionChangeReasonChangePlan   SubscriptionChangeReason = "change_plan"
	SubscriptionChangeReasonCancel       SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonExpire       SubscriptionChangeReason = "expire"
	SubscriptionChangeReasonStatusUpdate SubscriptionChangeReason = "status_update"
)
