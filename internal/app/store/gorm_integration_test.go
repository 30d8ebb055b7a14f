package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/internal/platform/db/dbtest"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()
	return NewGormStore(dbtest.NewPostgres(t))
}

func seed(t *testing.T, s *GormStore) (*models.User, *models.Plan) {
	t.Helper()
	ctx := context.Background()
	u := &models.User{ID: tool.GenerateUUIDV7(), Email: "alice@example.com", Username: "alice", PasswordHash: "x", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))
	p := &models.Plan{ID: tool.GenerateUUIDV7(), Name: "basic", Price: 999, DurationDays: 30, IsActive: true}
	require.NoError(t, s.CreatePlan(ctx, p))
	return u, p
}

func TestGormStore_Integration(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()
	u, p := seed(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("duplicates translate", func(t *testing.T) {
		err := s.CreatePlan(ctx, &models.Plan{ID: tool.GenerateUUIDV7(), Name: "basic", Price: 1, DurationDays: 1})
		require.ErrorIs(t, err, ErrDuplicate)

		err = s.CreateUser(ctx, &models.User{ID: tool.GenerateUUIDV7(), Email: "alice@example.com", Username: "other", PasswordHash: "x"})
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("login by username or email", func(t *testing.T) {
		got, err := s.GetUserByLogin(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		got, err = s.GetUserByLogin(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		_, err = s.GetUserByLogin(ctx, "bob")
		require.ErrorIs(t, err, ErrNotFound)
	})

	sub := &models.Subscription{
		ID: tool.GenerateUUIDV7(), UserID: u.ID, PlanID: p.ID,
		StartDate: now.AddDate(0, 0, -31), EndDate: now.AddDate(0, 0, -1),
		Status: types.SubscriptionStatusActive,
	}

	t.Run("single active subscription per user", func(t *testing.T) {
		require.NoError(t, s.CreateSubscription(ctx, sub))
		err := s.CreateSubscription(ctx, &models.Subscription{
			ID: tool.GenerateUUIDV7(), UserID: u.ID, PlanID: p.ID,
			StartDate: now, EndDate: now.AddDate(0, 0, 30), Status: types.SubscriptionStatusActive,
		})
		require.ErrorIs(t, err, ErrDuplicate)

		active, err := s.GetActiveSubscription(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, sub.ID, active.ID)
	})

	t.Run("overdue and update in one transaction", func(t *testing.T) {
		err := s.Transaction(ctx, func(tx Store) error {
			overdue, err := tx.ListOverdueSubscriptions(ctx, now)
			require.NoError(t, err)
			require.Len(t, overdue, 1)
			overdue[0].Status = types.SubscriptionStatusExpired
			return tx.UpdateSubscription(ctx, overdue[0])
		})
		require.NoError(t, err)

		overdue, err := s.ListOverdueSubscriptions(ctx, now)
		require.NoError(t, err)
		require.Empty(t, overdue)

		_, err = s.GetActiveSubscription(ctx, u.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list and count", func(t *testing.T) {
		subs, err := s.ListSubscriptions(ctx, SubscriptionQuery{UserID: u.ID, Status: types.SubscriptionStatusExpired})
		require.NoError(t, err)
		require.Len(t, subs, 1)

		n, err := s.CountSubscriptionsByPlan(ctx, p.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	})

	t.Run("update and delete plan", func(t *testing.T) {
		p.IsActive = false
		require.NoError(t, s.UpdatePlan(ctx, p))
		active, err := s.ListPlans(ctx, true, types.Page{})
		require.NoError(t, err)
		require.Empty(t, active)

		require.ErrorIs(t, s.DeletePlan(ctx, tool.GenerateUUIDV7()), ErrNotFound)
		require.ErrorIs(t, s.UpdatePlan(ctx, &models.Plan{ID: tool.GenerateUUIDV7(), Name: "ghost"}), ErrNotFound)
	})

	t.Run("concurrent creates keep one active subscription", func(t *testing.T) {
		bob := &models.User{ID: tool.GenerateUUIDV7(), Email: "bob@example.com", Username: "bob", PasswordHash: "x", IsActive: true}
		require.NoError(t, s.CreateUser(ctx, bob))

		const attempts = 8
		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- s.CreateSubscription(ctx, &models.Subscription{
					ID: tool.GenerateUUIDV7(), UserID: bob.ID, PlanID: p.ID,
					StartDate: now, EndDate: now.AddDate(0, 0, 30), Status: types.SubscriptionStatusActive,
				})
			}()
		}
		wg.Wait()
		close(results)

		created := 0
		for err := range results {
			if err == nil {
				created++
				continue
			}
			require.ErrorIs(t, err, ErrDuplicate)
		}
		require.Equal(t, 1, created)

		subs, err := s.ListSubscriptions(ctx, SubscriptionQuery{UserID: bob.ID, Status: types.SubscriptionStatusActive})
		require.NoError(t, err)
		require.Len(t, subs, 1)
	})
}
