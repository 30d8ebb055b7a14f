package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/internal/platform/db/dbtest"
	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestGetStatistic_Validation(t *testing.T) {
	svc := New(nil, tool.NewFakeClock(now), zap.NewNop().Sugar())
	ctx := context.Background()

	tests := []struct {
		name string
		req  *StatisticRequest
	}{
		{"nil", nil},
		{"no items", &StatisticRequest{}},
		{"unknown item", &StatisticRequest{DataItems: []*StatisticDataItem{{ID: "total_gmv"}}}},
		{"null item", &StatisticRequest{DataItems: []*StatisticDataItem{nil}}},
		{"bad filter field", &StatisticRequest{
			DataItems: []*StatisticDataItem{{ID: StatisticTypeDailyRevenue}},
			Filters:   []*types.CommonFilter{{Field: "1=1; --", Operator: types.CommonFilterOperatorEq, Values: []any{1}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetStatistic(ctx, tt.req)
			assert.ErrorIs(t, err, apperror.ErrBadRequest)
		})
	}
}

func TestScanSubscriptions_Validation(t *testing.T) {
	svc := New(nil, tool.NewFakeClock(now), zap.NewNop().Sugar())
	_, err := svc.ScanSubscriptions(context.Background(), &ScanSubscriptionsRequest{SortBy: "password_hash"})
	assert.ErrorIs(t, err, apperror.ErrBadRequest)
}

func TestAppliesTo(t *testing.T) {
	req := &StatisticRequest{Filters: []*types.CommonFilter{{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"active"}}}}
	assert.False(t, req.appliesTo(StatisticTypeDailyExpiredCount))
	assert.True(t, req.appliesTo(StatisticTypeDailyRevenue))
	assert.True(t, (&StatisticRequest{}).appliesTo(StatisticTypeTotalActiveCount))
}

type seed struct {
	db    *gorm.DB
	basic *models.Plan
	pro   *models.Plan
}

func seedData(t *testing.T) seed {
	gdb := dbtest.NewPostgres(t)
	basic := &models.Plan{ID: tool.GenerateUUIDV7(), Name: "basic", Price: 1000, DurationDays: 30, IsActive: true}
	pro := &models.Plan{ID: tool.GenerateUUIDV7(), Name: "pro", Price: 2500, DurationDays: 30, IsActive: true}
	require.NoError(t, gdb.Create(basic).Error)
	require.NoError(t, gdb.Create(pro).Error)

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cancelledAt := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	subs := []*models.Subscription{
		{PlanID: basic.ID, Status: types.SubscriptionStatusActive, StartDate: day1, EndDate: day1.AddDate(0, 0, 30), CreatedAt: day1},
		{PlanID: pro.ID, Status: types.SubscriptionStatusActive, StartDate: day1, EndDate: day1.AddDate(0, 0, 30), CreatedAt: day1},
		{PlanID: pro.ID, Status: types.SubscriptionStatusCancelled, StartDate: day2, EndDate: day2.AddDate(0, 0, 30), CreatedAt: day2, CancelledAt: &cancelledAt},
		{PlanID: basic.ID, Status: types.SubscriptionStatusExpired, StartDate: day2.AddDate(0, 0, -40), EndDate: day2, CreatedAt: day2},
	}
	for _, s := range subs {
		s.ID = tool.GenerateUUIDV7()
		s.UserID = tool.GenerateUUIDV7()
		require.NoError(t, gdb.Create(s).Error)
	}
	return seed{db: gdb, basic: basic, pro: pro}
}

func TestGetStatistic_Integration(t *testing.T) {
	sd := seedData(t)
	svc := New(sd.db, tool.NewFakeClock(now), zap.NewNop().Sugar())

	res, err := svc.GetStatistic(context.Background(), &StatisticRequest{DataItems: []*StatisticDataItem{
		{ID: StatisticTypeTotalActiveCount},
		{ID: StatisticTypeActiveByPlan},
		{ID: StatisticTypeDailyNewSubscriptionCount},
		{ID: StatisticTypeDailyCancelledCount},
		{ID: StatisticTypeDailyExpiredCount},
		{ID: StatisticTypeDailyRevenue},
	}})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.DataItems[StatisticTypeTotalActiveCount][0].Value)

	byPlan := res.DataItems[StatisticTypeActiveByPlan]
	require.Len(t, byPlan, 2)
	assert.Equal(t, "basic", byPlan[0].Label)

	assert.Equal(t, []StatisticResponseDataItem{
		{Date: "2026-03-02", Value: 2},
		{Date: "2026-03-01", Value: 2},
	}, res.DataItems[StatisticTypeDailyNewSubscriptionCount])

	assert.Equal(t, []StatisticResponseDataItem{{Date: "2026-03-05", Value: 1}}, res.DataItems[StatisticTypeDailyCancelledCount])
	assert.Equal(t, []StatisticResponseDataItem{{Date: "2026-03-02", Value: 1}}, res.DataItems[StatisticTypeDailyExpiredCount])

	assert.Equal(t, []StatisticResponseDataItem{
		{Date: "2026-03-02", Value: 3500},
		{Date: "2026-03-01", Value: 3500},
	}, res.DataItems[StatisticTypeDailyRevenue])
}

func TestGetStatistic_FilterByPlan(t *testing.T) {
	sd := seedData(t)
	svc := New(sd.db, tool.NewFakeClock(now), zap.NewNop().Sugar())

	res, err := svc.GetStatistic(context.Background(), &StatisticRequest{
		Filters: []*types.CommonFilter{{Field: "plan_id", Operator: types.CommonFilterOperatorEq, Values: []any{sd.pro.ID}}},
		DataItems: []*StatisticDataItem{
			{ID: StatisticTypeDailyRevenue},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []StatisticResponseDataItem{
		{Date: "2026-03-02", Value: 2500},
		{Date: "2026-03-01", Value: 2500},
	}, res.DataItems[StatisticTypeDailyRevenue])
}

func TestScanSubscriptions_Integration(t *testing.T) {
	sd := seedData(t)
	svc := New(sd.db, tool.NewFakeClock(now), zap.NewNop().Sugar())

	res, err := svc.ScanSubscriptions(context.Background(), &ScanSubscriptionsRequest{
		Filters: []*types.CommonFilter{
			{Field: "created_at", Operator: types.CommonFilterOperatorDateRange, Values: []any{"2026-03-02", "2026-03-02"}},
		},
		Size:      1,
		SortBy:    "end_date",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, types.SubscriptionStatusExpired, res.Items[0].Status)
}
