package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/subscriptions/pkg/apperror"
	"github.com/fatflowers/subscriptions/pkg/types"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")
	f.addPlan(t, "monthly", 30, true)
	f.addPlan(t, "retired", 30, false)

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, t0, sub.StartDate)
	assert.Equal(t, t0.AddDate(0, 0, 30), sub.EndDate)
	assert.Nil(t, sub.CancelledAt)
	assert.Equal(t, []types.SubscriptionChangeReason{types.SubscriptionChangeReasonCreate}, f.hook.reasons())

	tests := []struct {
		name      string
		userID    string
		planID    string
		requester *types.Requester
		wantKind  apperror.Kind
	}{
		{"second active subscription", "alice", "monthly", alice, apperror.KindConflict},
		{"inactive plan", "bob", "retired", bob, apperror.KindConflict},
		{"unknown plan", "bob", "nope", bob, apperror.KindNotFound},
		{"unknown user", "carol", "monthly", admin, apperror.KindNotFound},
		{"other user", "bob", "monthly", alice, apperror.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.userID, tt.planID, tt.requester)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperror.KindOf(err))
		})
	}
	// failed operations notify nobody
	assert.Len(t, f.hook.reasons(), 1)
}

func TestCreate_AdminOnBehalfOfUser(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice")
	f.addPlan(t, "monthly", 30, true)

	sub, err := f.svc.Create(context.Background(), "alice", "monthly", admin)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub.UserID)
	assert.Equal(t, "admin", f.hook.changes[0].Actor)
}

func TestChangePlan_CarriesWholeDaysLeft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	f.addPlan(t, "monthly", 30, true)
	f.addPlan(t, "short", 20, true)

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)

	// 20 days and 6 hours later: 9 whole days remain
	f.clock.Advance(20*24*time.Hour + 6*time.Hour)
	now := f.clock.Now()

	changed, err := f.svc.ChangePlan(ctx, sub.ID, "short", alice)
	require.NoError(t, err)
	assert.Equal(t, "short", changed.PlanID)
	assert.Equal(t, now.AddDate(0, 0, 29), changed.EndDate)
	assert.Equal(t, types.SubscriptionStatusActive, changed.Status)
	assert.Equal(t, t0, changed.StartDate)
}

func TestChangePlan_TenDaysLeftPlusTwentyDayPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	f.addPlan(t, "monthly", 30, true)
	f.addPlan(t, "twenty", 20, true)

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)
	f.clock.Advance(20 * 24 * time.Hour)

	changed, err := f.svc.ChangePlan(ctx, sub.ID, "twenty", alice)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), changed.EndDate)
}

func TestChangePlan_PastEndDateCountsZeroDays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	f.addPlan(t, "monthly", 30, true)

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)
	f.clock.Advance(45 * 24 * time.Hour)

	changed, err := f.svc.ChangePlan(ctx, sub.ID, "monthly", alice)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), changed.EndDate)
}

func TestChangePlan_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")
	f.addPlan(t, "monthly", 30, true)
	f.addPlan(t, "retired", 30, false)

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)

	tests := []struct {
		name      string
		subID     string
		planID    string
		requester *types.Requester
		wantKind  apperror.Kind
	}{
		{"unknown subscription", "nope", "monthly", alice, apperror.KindNotFound},
		{"not owner", sub.ID, "monthly", bob, apperror.KindForbidden},
		{"unknown plan", sub.ID, "nope", alice, apperror.KindNotFound},
		{"inactive plan", sub.ID, "retired", alice, apperror.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ChangePlan(ctx, tt.subID, tt.planID, tt.requester)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperror.KindOf(err))
		})
	}

	unchanged, err := f.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.EndDate, unchanged.EndDate)
	assert.Equal(t, "monthly", unchanged.PlanID)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")
	f.addPlan(t, "monthly", 30, true)

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, sub.ID, bob)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	f.clock.Advance(time.Hour)
	cancelled, err := f.svc.Cancel(ctx, sub.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, t0.Add(time.Hour), *cancelled.CancelledAt)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Cancel(ctx, sub.ID, alice)
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "Subscription is already cancelled")

	again, err := f.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), *again.CancelledAt)

	// a cancelled subscription frees the user for a new one
	_, err = f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		prepare   types.SubscriptionStatus
		target    types.SubscriptionStatus
		requester func(owner *types.Requester) *types.Requester
		wantKind  apperror.Kind
		wantErr   bool
	}{
		{name: "owner cancels", target: types.SubscriptionStatusCancelled, requester: func(o *types.Requester) *types.Requester { return o }},
		{name: "admin expires", target: types.SubscriptionStatusExpired, requester: func(*types.Requester) *types.Requester { return admin }},
		{name: "owner cannot expire", target: types.SubscriptionStatusExpired, requester: func(o *types.Requester) *types.Requester { return o }, wantErr: true, wantKind: apperror.KindForbidden},
		{name: "same state", target: types.SubscriptionStatusActive, requester: func(o *types.Requester) *types.Requester { return o }, wantErr: true, wantKind: apperror.KindConflict},
		{name: "reactivate cancelled", prepare: types.SubscriptionStatusCancelled, target: types.SubscriptionStatusActive, requester: func(*types.Requester) *types.Requester { return admin }, wantErr: true, wantKind: apperror.KindConflict},
		{name: "cancelled to expired", prepare: types.SubscriptionStatusCancelled, target: types.SubscriptionStatusExpired, requester: func(*types.Requester) *types.Requester { return admin }, wantErr: true, wantKind: apperror.KindConflict},
		{name: "unknown status", target: types.SubscriptionStatus("paused"), requester: func(o *types.Requester) *types.Requester { return o }, wantErr: true, wantKind: apperror.KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			alice := f.addUser(t, "alice")
			f.addPlan(t, "monthly", 30, true)
			sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
			require.NoError(t, err)
			if tt.prepare != "" {
				_, err := f.svc.SetStatus(ctx, sub.ID, tt.prepare, admin)
				require.NoError(t, err)
			}

			got, err := f.svc.SetStatus(ctx, sub.ID, tt.target, tt.requester(alice))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperror.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Status)
			assert.Equal(t, tt.target == types.SubscriptionStatusCancelled, got.CancelledAt != nil)
		})
	}
}

func TestUpdate_PlanAndStatusInOneTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	f.addPlan(t, "monthly", 30, true)
	f.addPlan(t, "yearly", 365, true)

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)

	plan := "yearly"
	status := types.SubscriptionStatusCancelled
	got, err := f.svc.Update(ctx, sub.ID, UpdateRequest{PlanID: &plan, Status: &status}, alice)
	require.NoError(t, err)
	assert.Equal(t, "yearly", got.PlanID)
	assert.Equal(t, types.SubscriptionStatusCancelled, got.Status)
	assert.Equal(t, []types.SubscriptionChangeReason{
		types.SubscriptionChangeReasonCreate,
		types.SubscriptionChangeReasonChangePlan,
		types.SubscriptionChangeReasonStatusUpdate,
	}, f.hook.reasons())

	// the status step fails, so the plan step is rolled back too
	plan = "monthly"
	_, err = f.svc.Update(ctx, sub.ID, UpdateRequest{PlanID: &plan, Status: &status}, alice)
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	stored, err := f.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "yearly", stored.PlanID)
}

func TestUpdate_Empty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	f.addPlan(t, "monthly", 30, true)
	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)

	got, err := f.svc.Update(ctx, sub.ID, UpdateRequest{}, alice)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Len(t, f.hook.reasons(), 1)
}

func TestLookupActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")
	f.addPlan(t, "monthly", 30, true)

	_, err := f.svc.LookupActive(ctx, "alice", alice)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)

	got, err := f.svc.LookupActive(ctx, "alice", alice)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	_, err = f.svc.LookupActive(ctx, "alice", bob)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")
	f.addPlan(t, "monthly", 30, true)
	f.addPlan(t, "yearly", 365, true)

	_, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "bob", "yearly", bob)
	require.NoError(t, err)

	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// end_date equal to now is not overdue
	f.clock.Advance(30 * 24 * time.Hour)
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(time.Second)
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.svc.LookupActive(ctx, "alice", alice)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	_, err = f.svc.LookupActive(ctx, "bob", bob)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Transitions().WithLabelValues("active", "expired")))
}

func TestSweepExpired_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, u := range []string{"alice", "bob"} {
		r := f.addUser(t, u)
		f.addPlan(t, "plan-"+u, 1, true)
		_, err := f.svc.Create(ctx, u, "plan-"+u, r)
		require.NoError(t, err)
	}
	f.clock.Advance(48 * time.Hour)

	f.store.FailOn("UpdateSubscription", errors.New("connection reset"))
	n, err := f.svc.SweepExpired(ctx)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))

	active, err := f.store.ListSubscriptions(ctx, storeQuery(types.SubscriptionStatusActive))
	require.NoError(t, err)
	assert.Len(t, active, 2)

	f.store.FailOn("UpdateSubscription", nil)
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSweepExpired_ConcurrentRunsExpireEachRowOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPlan(t, "daily", 1, true)
	const users = 20
	for i := range users {
		id := fmt.Sprintf("user-%02d", i)
		r := f.addUser(t, id)
		_, err := f.svc.Create(ctx, id, "daily", r)
		require.NoError(t, err)
	}
	f.clock.Advance(48 * time.Hour)

	const sweeps = 8
	var (
		wg    sync.WaitGroup
		total atomic.Int64
		errs  = make(chan error, sweeps)
	)
	for range sweeps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.svc.SweepExpired(ctx)
			if err != nil {
				errs <- err
				return
			}
			total.Add(int64(n))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.EqualValues(t, users, total.Load())
	expired, err := f.store.ListSubscriptions(ctx, storeQuery(types.SubscriptionStatusExpired))
	require.NoError(t, err)
	assert.Len(t, expired, users)
	assert.Equal(t, float64(users), testutil.ToFloat64(f.m.Transitions().WithLabelValues("active", "expired")))
}

func TestCreate_ConcurrentForOneUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	f.addPlan(t, "monthly", 30, true)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, "alice", "monthly", alice)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)

	active, err := f.store.ListSubscriptions(ctx, storeQuery(types.SubscriptionStatusActive))
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Len(t, f.hook.reasons(), 1)
}

func TestGetDetailAndLists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")
	f.addPlan(t, "monthly", 30, true)

	sub, err := f.svc.Create(ctx, "alice", "monthly", alice)
	require.NoError(t, err)

	d, err := f.svc.Get(ctx, sub.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, "monthly", d.Plan.ID)
	assert.Equal(t, "alice", d.User.ID)

	_, err = f.svc.Get(ctx, sub.ID, bob)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	subs, err := f.svc.ListForUser(ctx, "alice", "", typesPage(), alice)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	subs, err = f.svc.ListForUser(ctx, "alice", types.SubscriptionStatusExpired, typesPage(), alice)
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = f.svc.ListForUser(ctx, "alice", "bogus", typesPage(), alice)
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))

	_, err = f.svc.List(ctx, "", typesPage(), alice)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	all, err := f.svc.List(ctx, "", typesPage(), admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUserScopedQueries_UnknownUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ListForUser(ctx, "ghost", "", typesPage(), admin)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "User not found")

	_, err = f.svc.LookupActive(ctx, "ghost", admin)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "User not found")
}
