package auditlog

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/subscriptions/internal/app/service/subscription"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/logctx"
	"github.com/fatflowers/subscriptions/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// OnSubscriptionChange records the change as a subscription_log row in the background.
func (s *Service) OnSubscriptionChange(ctx context.Context, c subscription.Change) {
	s.Save(ctx, &models.SubscriptionLog{
		SubscriptionID: c.After.ID,
		UserID:         c.After.UserID,
		Reason:         c.Reason,
		Actor:          c.Actor,
		Before:         datatypes.NewJSONType(c.Before),
		After:          datatypes.NewJSONType(c.After),
		Extra:          datatypes.JSONMap{},
		CreatedAt:      c.At,
	})
}

// Save asynchronously persists a subscription log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, log *models.SubscriptionLog) {
	if log == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if log.ID == "" {
			log.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to save subscription log",
				"subscription_id", log.SubscriptionID, "reason", log.Reason, "err", err)
		}
	}()
}

// Wait blocks until pending writes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// History returns the audit trail of one subscription, newest first.
func (s *Service) History(ctx context.Context, subscriptionID string) ([]*models.SubscriptionLog, error) {
	var logs []*models.SubscriptionLog
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// newDrained appends the drain at construction, ahead of the sweeper's stop hook.
func newDrained(lc fx.Lifecycle, db *gorm.DB, log *zap.SugaredLogger) *Service {
	s := New(db, log)
	lc.Append(fx.StopHook(s.Wait))
	return s
}

var Module = fx.Options(
	fx.Provide(
		newDrained,
		subscription.AsHook(func(s *Service) *Service { return s }),
	),
)
