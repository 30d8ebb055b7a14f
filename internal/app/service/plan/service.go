package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/internal/platform/cache"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	cfgpkg "github.com/fatflowers/subscriptions/pkg/config"
	"github.com/fatflowers/subscriptions/pkg/logctx"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

const listCachePrefix = "plans:"

// CreateRequest is the payload for a new plan.
type CreateRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=100"`
	Description  string `json:"description"`
	Price        int64  `json:"price" binding:"required,gt=0"`
	DurationDays int    `json:"duration_days" binding:"required,gt=0"`
	Features     string `json:"features"`
	IsActive     *bool  `json:"is_active"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=100"`
	Description  *string `json:"description"`
	Price        *int64  `json:"price" binding:"omitempty,gt=0"`
	DurationDays *int    `json:"duration_days" binding:"omitempty,gt=0"`
	Features     *string `json:"features"`
	IsActive     *bool   `json:"is_active"`
}

// Service manages the plan catalog. Listings are served from the cache when possible.
type Service struct {
	store store.Store
	cache cache.Cache
	cfg   *cfgpkg.Config
	log   *zap.SugaredLogger
}

func NewService(st store.Store, c cache.Cache, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{store: st, cache: c, cfg: cfg, log: log}
}

func listKey(activeOnly bool, page types.Page) string {
	return fmt.Sprintf("%slist:%t:%d:%d", listCachePrefix, activeOnly, page.Skip, page.Limit)
}

// List returns plans ordered by creation time.
func (s *Service) List(ctx context.Context, activeOnly bool, page types.Page) ([]*models.Plan, error) {
	page = page.Normalize()
	key := listKey(activeOnly, page)
	lg := logctx.FromCtx(ctx, s.log)

	var cached []*models.Plan
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		lg.Warnw("plan cache read failed", "key", key, "err", err)
	} else if found {
		return cached, nil
	}

	plans, err := s.store.ListPlans(ctx, activeOnly, page)
	if err != nil {
		return nil, apperror.Internal(err, "list plans")
	}
	if plans == nil {
		plans = []*models.Plan{}
	}
	if err := s.cache.Set(ctx, key, plans, s.cfg.Redis.PlanCacheTTL); err != nil {
		lg.Warnw("plan cache write failed", "key", key, "err", err)
	}
	return plans, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Plan, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFound("Plan not found")
		}
		return nil, apperror.Internal(err, "get plan")
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.BadRequest("Plan name is required")
	}
	p := &models.Plan{
		ID:           tool.GenerateUUIDV7(),
		Name:         name,
		Description:  req.Description,
		Price:        req.Price,
		DurationDays: req.DurationDays,
		Features:     req.Features,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetPlanByName(ctx, p.Name); err == nil {
			return apperror.Conflict("Plan with name '%s' already exists", p.Name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.CreatePlan(ctx, p)
	})
	if err != nil {
		return nil, s.writeError(err, p.Name, "create plan")
	}
	s.invalidate(ctx)
	logctx.FromCtx(ctx, s.log).Infow("plan created", "plan_id", p.ID, "name", p.Name)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*models.Plan, error) {
	var updated *models.Plan
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		p, err := tx.GetPlan(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperror.NotFound("Plan not found")
			}
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name != p.Name {
				if _, err := tx.GetPlanByName(ctx, name); err == nil {
					return apperror.Conflict("Plan with name '%s' already exists", name)
				} else if !errors.Is(err, store.ErrNotFound) {
					return err
				}
			}
			p.Name = name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.DurationDays != nil {
			p.DurationDays = *req.DurationDays
		}
		if req.Features != nil {
			p.Features = *req.Features
		}
		if req.IsActive != nil {
			p.IsActive = *req.IsActive
		}
		if err := validate(p); err != nil {
			return err
		}
		updated = p
		return tx.UpdatePlan(ctx, p)
	})
	if err != nil {
		name := ""
		if req.Name != nil {
			name = *req.Name
		}
		return nil, s.writeError(err, name, "update plan")
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a plan no subscription references. Referenced plans should be
// deactivated instead.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetPlan(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperror.NotFound("Plan not found")
			}
			return err
		}
		n, err := tx.CountSubscriptionsByPlan(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperror.Conflict("Plan is referenced by %d subscription(s); set is_active=false instead", n)
		}
		return tx.DeletePlan(ctx, id)
	})
	if err != nil {
		return s.writeError(err, "", "delete plan")
	}
	s.invalidate(ctx)
	return nil
}

func validate(p *models.Plan) error {
	switch {
	case p.Name == "" || len(p.Name) > 100:
		return apperror.BadRequest("Plan name must be 1 to 100 characters")
	case p.Price <= 0:
		return apperror.BadRequest("Plan price must be positive")
	case p.DurationDays <= 0:
		return apperror.BadRequest("Plan duration_days must be positive")
	}
	return nil
}

func (s *Service) writeError(err error, name, op string) error {
	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, store.ErrDuplicate):
		return apperror.Conflict("Plan with name '%s' already exists", name)
	default:
		return apperror.Internal(err, "%s", op)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.InvalidatePrefix(ctx, listCachePrefix); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("plan cache invalidation failed", "err", err)
	}
}

var Module = fx.Options(
	fx.Provide(NewService),
)
