package models

import "time"

// Plan is a purchasable subscription plan. IsActive=false only blocks new subscriptions.
type Plan struct {
	ID          string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name        string `gorm:"column:name;type:varchar(100);not null;uniqueIndex" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description"`
	// Price in minor currency units.
	Price        int64     `gorm:"column:price;type:bigint;not null" json:"price"`
	DurationDays int       `gorm:"column:duration_days;not null" json:"duration_days"`
	Features     string    `gorm:"column:features;type:text" json:"features"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}
