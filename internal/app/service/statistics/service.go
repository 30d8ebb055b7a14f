package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/logctx"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

type StatisticType string

const (
	StatisticTypeTotalActiveCount          StatisticType = "total_active_count"
	StatisticTypeActiveByPlan              StatisticType = "active_by_plan"
	StatisticTypeDailyNewSubscriptionCount StatisticType = "daily_new_subscription_count"
	StatisticTypeDailyCancelledCount       StatisticType = "daily_cancelled_count"
	StatisticTypeDailyExpiredCount         StatisticType = "daily_expired_count"
	StatisticTypeDailyRevenue              StatisticType = "daily_revenue"
)

var statisticTypes = []StatisticType{
	StatisticTypeTotalActiveCount,
	StatisticTypeActiveByPlan,
	StatisticTypeDailyNewSubscriptionCount,
	StatisticTypeDailyCancelledCount,
	StatisticTypeDailyExpiredCount,
	StatisticTypeDailyRevenue,
}

// FilterFields are the subscription columns statistics and admin listings may filter on.
var FilterFields = []string{"user_id", "plan_id", "status", "start_date", "end_date", "cancelled_at", "created_at"}

// statusBound items pin the status themselves, so a status filter makes them empty.
var statusBound = []StatisticType{
	StatisticTypeTotalActiveCount,
	StatisticTypeActiveByPlan,
	StatisticTypeDailyCancelledCount,
	StatisticTypeDailyExpiredCount,
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

func (r *StatisticRequest) validate() error {
	if len(r.DataItems) == 0 {
		return apperror.BadRequest("data_items is required")
	}
	for _, di := range r.DataItems {
		if di == nil || !lo.Contains(statisticTypes, di.ID) {
			return apperror.BadRequest("invalid data item id: %v", lo.FromPtr(di).ID)
		}
	}
	if err := types.ValidateFilters(r.Filters, FilterFields); err != nil {
		return apperror.BadRequest("%s", err.Error())
	}
	return nil
}

func (r *StatisticRequest) appliesTo(id StatisticType) bool {
	if !lo.Contains(statusBound, id) {
		return true
	}
	return !lo.ContainsBy(r.Filters, func(f *types.CommonFilter) bool { return f.Field == "status" })
}

type StatisticResponseDataItem struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// ScanSubscriptionsRequest drives the admin listing.
type ScanSubscriptionsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanSubscriptionsResponse struct {
	Items []*models.Subscription `json:"items"`
	Total int64                  `json:"total"`
}

var sortFields = []string{"created_at", "updated_at", "start_date", "end_date", "status"}

// Service runs read-only reporting queries directly against the database.
type Service struct {
	db    *gorm.DB
	clock tool.Clock
	log   *zap.SugaredLogger
}

func New(db *gorm.DB, clock tool.Clock, log *zap.SugaredLogger) *Service {
	return &Service{db: db, clock: clock, log: log}
}

// filtered returns the subscription rows matching the request filters as a subquery.
func (s *Service) filtered(ctx context.Context, filters []*types.CommonFilter) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where(clause.Where{Exprs: []clause.Expression{types.AndFilters(filters)}})
}

func (s *Service) ScanSubscriptions(ctx context.Context, req *ScanSubscriptionsRequest) (*ScanSubscriptionsResponse, error) {
	if req == nil {
		return nil, apperror.BadRequest("nil request")
	}
	if err := types.ValidateFilters(req.Filters, FilterFields); err != nil {
		return nil, apperror.BadRequest("%s", err.Error())
	}
	if req.SortBy != "" && !lo.Contains(sortFields, req.SortBy) {
		return nil, apperror.BadRequest("unsupported sort field: %q", req.SortBy)
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.Size > types.MaxPageLimit {
		req.Size = types.MaxPageLimit
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.filtered(ctx, req.Filters)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, apperror.Internal(err, "failed to count subscriptions")
	}

	sortBy := lo.Ternary(req.SortBy == "", "created_at", req.SortBy)
	q := tx.Limit(req.Size).Offset(req.From).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.Subscription
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperror.Internal(err, "failed to list subscriptions")
	}
	if rows == nil {
		rows = []*models.Subscription{}
	}
	return &ScanSubscriptionsResponse{Items: rows, Total: total}, nil
}

func (s *Service) getTotalActiveCount(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	now := s.clock.Now().UTC()
	var count int64
	err := s.filtered(ctx, req.Filters).
		Where("status = ?", types.SubscriptionStatusActive).
		Where("end_date >= ?", now).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	return []StatisticResponseDataItem{{Date: now.Format(time.DateOnly), Value: count}}, nil
}

func (s *Service) getActiveByPlan(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	now := s.clock.Now().UTC()
	var results []StatisticResponseDataItem
	sub := s.filtered(ctx, req.Filters).Where("status = ?", types.SubscriptionStatusActive)
	err := s.db.WithContext(ctx).Table("(?) AS s", sub).
		Select("p.name AS label, count(*) AS value").
		Joins("JOIN plan p ON p.id = s.plan_id").
		Group("p.name").
		Order("value DESC, label").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Date = now.Format(time.DateOnly)
	}
	return results, nil
}

// daily counts rows per day of column.
func (s *Service) daily(ctx context.Context, req *StatisticRequest, column string, status types.SubscriptionStatus) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
	q := s.filtered(ctx, req.Filters).
		Select(day + " AS date, count(*) AS value").
		Where(column + " IS NOT NULL")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Group(day).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// getDailyRevenue sums the plan price of subscriptions started each day.
func (s *Service) getDailyRevenue(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	err := s.db.WithContext(ctx).Table("(?) AS s", s.filtered(ctx, req.Filters)).
		Select("TO_CHAR(s.created_at, 'YYYY-MM-DD') AS date, COALESCE(SUM(p.price), 0)::bigint AS value").
		Joins("JOIN plan p ON p.id = s.plan_id").
		Group("TO_CHAR(s.created_at, 'YYYY-MM-DD')").
		Order("date DESC").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, req *StatisticRequest, id StatisticType) ([]StatisticResponseDataItem, error) {
	switch id {
	case StatisticTypeTotalActiveCount:
		return s.getTotalActiveCount(ctx, req)
	case StatisticTypeActiveByPlan:
		return s.getActiveByPlan(ctx, req)
	case StatisticTypeDailyNewSubscriptionCount:
		return s.daily(ctx, req, "created_at", "")
	case StatisticTypeDailyCancelledCount:
		return s.daily(ctx, req, "cancelled_at", types.SubscriptionStatusCancelled)
	case StatisticTypeDailyExpiredCount:
		return s.daily(ctx, req, "end_date", types.SubscriptionStatusExpired)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, req)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", id)
	}
}

// GetStatistic computes every requested data item concurrently. The first failure
// cancels the remaining queries.
func (s *Service) GetStatistic(ctx context.Context, req *StatisticRequest) (*StatisticResponse, error) {
	if req == nil {
		return nil, apperror.BadRequest("nil request")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	ids := lo.Uniq(lo.Map(req.DataItems, func(di *StatisticDataItem, _ int) StatisticType { return di.ID }))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Every goroutine sends exactly one message and both channels are buffered,
	// so nothing blocks when we return early.
	errChan := make(chan error, len(ids))
	resChan := make(chan lo.Entry[StatisticType, []StatisticResponseDataItem], len(ids))

	for _, id := range ids {
		go func() {
			if !req.appliesTo(id) {
				resChan <- lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: id, Value: []StatisticResponseDataItem{}}
				return
			}
			res, err := s.getStatistic(ctx, req, id)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", id, err)
				return
			}
			if res == nil {
				res = []StatisticResponseDataItem{}
			}
			resChan <- lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: id, Value: res}
		}()
	}

	results := make(map[StatisticType][]StatisticResponseDataItem, len(ids))
	for range ids {
		select {
		case err := <-errChan:
			logctx.FromCtx(ctx, s.log).Errorw("statistic query failed", "err", err)
			return nil, apperror.Internal(err, "failed to compute statistics")
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &StatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
