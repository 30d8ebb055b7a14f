package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/service/subscription"
	"github.com/fatflowers/subscriptions/internal/platform/mq"
	"github.com/fatflowers/subscriptions/pkg/logctx"
	"github.com/fatflowers/subscriptions/pkg/types"
)

const publishTimeout = 5 * time.Second

// Routing keys on the subscription events exchange.
const (
	KeyCreated       = "subscription.created"
	KeyPlanChanged   = "subscription.plan_changed"
	KeyCancelled     = "subscription.cancelled"
	KeyExpired       = "subscription.expired"
	KeyStatusChanged = "subscription.status_changed"
)

// Event is the message body published for every committed subscription change.
type Event struct {
	Type           string                         `json:"type"`
	SubscriptionID string                         `json:"subscription_id"`
	UserID         string                         `json:"user_id"`
	PlanID         string                         `json:"plan_id"`
	PreviousPlanID string                         `json:"previous_plan_id,omitempty"`
	Status         types.SubscriptionStatus       `json:"status"`
	PreviousStatus types.SubscriptionStatus       `json:"previous_status,omitempty"`
	Reason         types.SubscriptionChangeReason `json:"reason"`
	Actor          string                         `json:"actor"`
	StartDate      time.Time                      `json:"start_date"`
	EndDate        time.Time                      `json:"end_date"`
	OccurredAt     time.Time                      `json:"occurred_at"`
}

// routingKey picks the key from the reason, falling back to the resulting status.
func routingKey(c subscription.Change) string {
	switch c.Reason {
	case types.SubscriptionChangeReasonCreate:
		return KeyCreated
	case types.SubscriptionChangeReasonChangePlan:
		return KeyPlanChanged
	case types.SubscriptionChangeReasonCancel:
		return KeyCancelled
	case types.SubscriptionChangeReasonExpire:
		return KeyExpired
	}
	switch c.After.Status {
	case types.SubscriptionStatusCancelled:
		return KeyCancelled
	case types.SubscriptionStatusExpired:
		return KeyExpired
	}
	return KeyStatusChanged
}

func NewEvent(c subscription.Change) Event {
	e := Event{
		Type:           routingKey(c),
		SubscriptionID: c.After.ID,
		UserID:         c.After.UserID,
		PlanID:         c.After.PlanID,
		Status:         c.After.Status,
		Reason:         c.Reason,
		Actor:          c.Actor,
		StartDate:      c.After.StartDate,
		EndDate:        c.After.EndDate,
		OccurredAt:     c.At,
	}
	if c.Before != nil {
		if c.Before.PlanID != c.After.PlanID {
			e.PreviousPlanID = c.Before.PlanID
		}
		if c.Before.Status != c.After.Status {
			e.PreviousStatus = c.Before.Status
		}
	}
	return e
}

// Notifier publishes subscription changes to the message broker in the background.
type Notifier struct {
	pub mq.Publisher
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

func NewNotifier(pub mq.Publisher, log *zap.SugaredLogger) *Notifier {
	return &Notifier{pub: pub, log: log}
}

func (n *Notifier) OnSubscriptionChange(ctx context.Context, c subscription.Change) {
	e := NewEvent(c)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := n.pub.Publish(pubCtx, e.Type, e); err != nil {
			logctx.FromCtx(ctx, n.log).Errorw("failed to publish subscription event",
				"type", e.Type, "subscription_id", e.SubscriptionID, "err", err)
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// newDrainedNotifier appends the drain at construction, ahead of the sweeper's stop hook.
func newDrainedNotifier(lc fx.Lifecycle, pub mq.Publisher, log *zap.SugaredLogger) *Notifier {
	n := NewNotifier(pub, log)
	lc.Append(fx.StopHook(n.Wait))
	return n
}

var Module = fx.Options(
	fx.Provide(
		newDrainedNotifier,
		subscription.AsHook(func(n *Notifier) *Notifier { return n }),
	),
)
