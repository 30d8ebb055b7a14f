package subscription

import (
	"github.com/fatflowers/subscriptions/pkg/types"
)

type transition struct {
	From types.SubscriptionStatus
	To   types.SubscriptionStatus
}

type transitionRule struct {
	adminOnly bool
}

// Reactivation is only possible by creating a new subscription.
var validTransitions = map[transition]transitionRule{
	{types.SubscriptionStatusActive, types.SubscriptionStatusCancelled}: {},
	{types.SubscriptionStatusActive, types.SubscriptionStatusExpired}:   {adminOnly: true},
}

// ruleFor returns the rule of a status transition and whether it exists.
func ruleFor(from, to types.SubscriptionStatus) (transitionRule, bool) {
	r, ok := validTransitions[transition{from, to}]
	return r, ok
}
