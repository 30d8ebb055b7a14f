package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/subscriptions/pkg/types"
)

// SubscriptionLog records committed subscription changes.
// Use case: troubleshooting and audit.
type SubscriptionLog struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;not null;index:idx_subscription_log_sub_id,priority:1" json:"subscription_id"`
	UserID         string `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	// Reason is the change reason.
	Reason types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null" json:"reason"`
	// Actor is the user id that triggered the change, or "system".
	Actor  string                            `gorm:"column:actor;type:varchar(64);not null" json:"actor"`
	Before datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb;default:'null'" json:"before"`
	After  datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb;default:'null'" json:"after"`
	Extra  datatypes.JSONMap                 `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	// CreatedAt doubles as the second sort key of idx_subscription_log_sub_id.
	CreatedAt time.Time `gorm:"index:idx_subscription_log_sub_id,priority:2,sort:desc" json:"created_at"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
