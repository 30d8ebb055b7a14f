package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/types"
)

func TestMemory_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	boom := errors.New("boom")
	err := m.Transaction(ctx, func(tx store.Store) error {
		require.NoError(t, tx.CreatePlan(ctx, &models.Plan{ID: "p1", Name: "basic"}))
		_, err := tx.GetPlan(ctx, "p1")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.GetPlan(ctx, "p1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemory_SingleActivePerUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	end := time.Now().Add(time.Hour)

	require.NoError(t, m.CreateSubscription(ctx, &models.Subscription{ID: "s1", UserID: "u1", Status: types.SubscriptionStatusActive, EndDate: end}))
	err := m.CreateSubscription(ctx, &models.Subscription{ID: "s2", UserID: "u1", Status: types.SubscriptionStatusActive, EndDate: end})
	require.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, m.CreateSubscription(ctx, &models.Subscription{ID: "s3", UserID: "u1", Status: types.SubscriptionStatusExpired, EndDate: end}))
	require.NoError(t, m.CreateSubscription(ctx, &models.Subscription{ID: "s4", UserID: "u2", Status: types.SubscriptionStatusActive, EndDate: end}))
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateSubscription(ctx, &models.Subscription{ID: "s1", UserID: "u1", Status: types.SubscriptionStatusActive}))

	got, err := m.GetSubscription(ctx, "s1")
	require.NoError(t, err)
	got.Status = types.SubscriptionStatusExpired

	again, err := m.GetSubscription(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, again.Status)
}

func TestMemory_FailOn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("disk full")

	m.FailOn("CreatePlan", boom)
	require.ErrorIs(t, m.CreatePlan(ctx, &models.Plan{ID: "p1", Name: "basic"}), boom)

	m.FailOn("CreatePlan", nil)
	require.NoError(t, m.CreatePlan(ctx, &models.Plan{ID: "p1", Name: "basic"}))
}

func TestMemory_ListPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.CreatePlan(ctx, &models.Plan{ID: id, Name: id, IsActive: id != "b", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	all, err := m.ListPlans(ctx, false, types.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "a", all[0].ID)

	active, err := m.ListPlans(ctx, true, types.Page{})
	require.NoError(t, err)
	require.Len(t, active, 2)

	page, err := m.ListPlans(ctx, false, types.Page{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "b", page[0].ID)

	empty, err := m.ListPlans(ctx, false, types.Page{Skip: 10})
	require.NoError(t, err)
	require.Empty(t, empty)
}
