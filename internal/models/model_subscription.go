package models

import (
	"time"

	"github.com/fatflowers/subscriptions/pkg/types"
)

// Subscription binds a user to a plan for [StartDate, EndDate].
// At most one row per user may be active; CancelledAt is set iff Status is cancelled.
type Subscription struct {
	ID          string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID      string                   `gorm:"column:user_id;type:uuid;not null;index:idx_subscription_user_status,priority:1" json:"user_id"`
	PlanID      string                   `gorm:"column:plan_id;type:uuid;not null;index" json:"plan_id"`
	StartDate   time.Time                `gorm:"column:start_date;not null" json:"start_date"`
	EndDate     time.Time                `gorm:"column:end_date;not null;index" json:"end_date"`
	Status      types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index:idx_subscription_user_status,priority:2" json:"status"`
	CancelledAt *time.Time               `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// IsActiveAt reports whether the subscription is active and not past its end date at t.
func (s *Subscription) IsActiveAt(t time.Time) bool {
	return s != nil &&
		s.Status == types.SubscriptionStatusActive &&
		!s.EndDate.Before(t)
}

// Clone returns a deep copy, used for before/after snapshots.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.CancelledAt != nil {
		at := *s.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}
