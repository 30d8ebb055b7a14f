// Package store is the persistence boundary for users, plans and subscriptions.
// Records are returned as plain values; related rows are fetched explicitly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/types"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// SubscriptionQuery filters ListSubscriptions. Empty fields match everything.
type SubscriptionQuery struct {
	UserID string
	PlanID string
	Status types.SubscriptionStatus
	Page   types.Page
}

// Store is a repository over one database session. Inside Transaction, fn receives
// a Store bound to the transaction; returning an error rolls everything back.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	GetUser(ctx context.Context, id string) (*models.User, error)
	// GetUserByLogin matches login against username or email.
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error

	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*models.Plan, error)
	ListPlans(ctx context.Context, activeOnly bool, page types.Page) ([]*models.Plan, error)
	CreatePlan(ctx context.Context, p *models.Plan) error
	UpdatePlan(ctx context.Context, p *models.Plan) error
	DeletePlan(ctx context.Context, id string) error
	CountSubscriptionsByPlan(ctx context.Context, planID string) (int64, error)

	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, q SubscriptionQuery) ([]*models.Subscription, error)
	CreateSubscription(ctx context.Context, s *models.Subscription) error
	UpdateSubscription(ctx context.Context, s *models.Subscription) error
	// ListOverdueSubscriptions returns active subscriptions with end_date < now,
	// locked for update when called inside a transaction.
	ListOverdueSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error)
}
