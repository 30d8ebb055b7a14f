package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/types"
)

type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		return nil, translate("get user", err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("username = ? OR email = ?", login, login).First(&u).Error
	if err != nil {
		return nil, translate("get user by login", err)
	}
	return &u, nil
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate("create user", s.db.WithContext(ctx).Create(u).Error)
}

func (s *GormStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var p models.Plan
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, translate("get plan", err)
	}
	return &p, nil
}

func (s *GormStore) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	var p models.Plan
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if err != nil {
		return nil, translate("get plan by name", err)
	}
	return &p, nil
}

func (s *GormStore) ListPlans(ctx context.Context, activeOnly bool, page types.Page) ([]*models.Plan, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&models.Plan{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var plans []*models.Plan
	err := q.Order("created_at ASC").Order("id ASC").Offset(page.Skip).Limit(page.Limit).Find(&plans).Error
	if err != nil {
		return nil, translate("list plans", err)
	}
	return plans, nil
}

func (s *GormStore) CreatePlan(ctx context.Context, p *models.Plan) error {
	return translate("create plan", s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) UpdatePlan(ctx context.Context, p *models.Plan) error {
	res := s.db.WithContext(ctx).Model(p).Select("*").Omit("id", "created_at").Updates(p)
	if res.Error != nil {
		return translate("update plan", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("update plan", ErrNotFound)
	}
	return nil
}

func (s *GormStore) DeletePlan(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Plan{})
	if res.Error != nil {
		return translate("delete plan", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("delete plan", ErrNotFound)
	}
	return nil
}

func (s *GormStore) CountSubscriptionsByPlan(ctx context.Context, planID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("plan_id = ?", planID).Count(&n).Error
	if err != nil {
		return 0, translate("count subscriptions by plan", err)
	}
	return n, nil
}

func (s *GormStore) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.lockIfTx(s.db.WithContext(ctx)).Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, translate("get subscription", err)
	}
	return &sub, nil
}

func (s *GormStore) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.lockIfTx(s.db.WithContext(ctx)).
		Where("user_id = ? AND status = ?", userID, types.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, translate("get active subscription", err)
	}
	return &sub, nil
}

func (s *GormStore) ListSubscriptions(ctx context.Context, q SubscriptionQuery) ([]*models.Subscription, error) {
	page := q.Page.Normalize()
	db := s.db.WithContext(ctx).Model(&models.Subscription{})
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.PlanID != "" {
		db = db.Where("plan_id = ?", q.PlanID)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	var subs []*models.Subscription
	err := db.Order("created_at DESC").Order("id DESC").Offset(page.Skip).Limit(page.Limit).Find(&subs).Error
	if err != nil {
		return nil, translate("list subscriptions", err)
	}
	return subs, nil
}

func (s *GormStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return translate("create subscription", s.db.WithContext(ctx).Create(sub).Error)
}

func (s *GormStore) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	res := s.db.WithContext(ctx).Model(sub).Select("*").Omit("id", "user_id", "created_at").Updates(sub)
	if res.Error != nil {
		return translate("update subscription", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("update subscription", ErrNotFound)
	}
	return nil
}

func (s *GormStore) ListOverdueSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.lockIfTx(s.db.WithContext(ctx)).
		Where("status = ? AND end_date < ?", types.SubscriptionStatusActive, now).
		Order("end_date ASC").
		Find(&subs).Error
	if err != nil {
		return nil, translate("list overdue subscriptions", err)
	}
	return subs, nil
}

// lockIfTx takes row locks for reads that precede a write in the same transaction.
func (s *GormStore) lockIfTx(db *gorm.DB) *gorm.DB {
	if !s.inTx {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func newStore(db *gorm.DB) Store {
	return NewGormStore(db)
}

var Module = fx.Options(
	fx.Provide(newStore),
)
