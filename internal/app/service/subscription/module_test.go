package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/app/store/storetest"
	"github.com/fatflowers/subscriptions/internal/models"
	cfgpkg "github.com/fatflowers/subscriptions/pkg/config"
	"github.com/fatflowers/subscriptions/pkg/metrics"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

// gatedStore parks the next transaction once armed until release is closed.
type gatedStore struct {
	store.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Store.Transaction(ctx, fn)
}

// drainingHook counts changes and snapshots the count when its stop hook runs.
type drainingHook struct {
	mu          sync.Mutex
	seen        int
	seenAtDrain int
	drained     bool
}

func (h *drainingHook) OnSubscriptionChange(context.Context, Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen++
}

func TestModule_SweeperStopsBeforeHooksDrain(t *testing.T) {
	mem := storetest.NewMemory()
	gs := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	clock := tool.NewFakeClock(t0)
	hook := &drainingHook{}

	app := fxtest.New(t,
		fx.NopLogger,
		fx.Provide(
			func() store.Store { return gs },
			func() tool.Clock { return clock },
			func() *zap.SugaredLogger { return zap.NewNop().Sugar() },
			func() (*metrics.Business, error) { return metrics.NewBusiness(prometheus.NewRegistry()) },
			func() *cfgpkg.Config {
				return &cfgpkg.Config{Sweep: cfgpkg.SweepConfig{Enabled: true, Interval: 5 * time.Millisecond}}
			},
			AsHook(func(lc fx.Lifecycle) *drainingHook {
				lc.Append(fx.StopHook(func() {
					hook.mu.Lock()
					defer hook.mu.Unlock()
					hook.drained = true
					hook.seenAtDrain = hook.seen
				}))
				return hook
			}),
		),
		Module,
	)
	app.RequireStart()

	ctx := context.Background()
	gs.armed.Store(true)
	require.NoError(t, mem.CreateUser(ctx, &models.User{ID: "alice", Email: "alice@example.com", Username: "alice", PasswordHash: "x", IsActive: true}))
	require.NoError(t, mem.CreatePlan(ctx, &models.Plan{ID: "daily", Name: "daily", Price: 100, DurationDays: 1, IsActive: true}))
	require.NoError(t, mem.CreateSubscription(ctx, &models.Subscription{
		ID: "s1", UserID: "alice", PlanID: "daily",
		StartDate: t0.AddDate(0, 0, -2), EndDate: t0.AddDate(0, 0, -1),
		Status: types.SubscriptionStatusActive,
	}))

	select {
	case <-gs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic sweep never started")
	}

	stopped := make(chan error, 1)
	go func() {
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		stopped <- app.Stop(stopCtx)
	}()
	// give shutdown time to reach whichever hook it runs first
	time.Sleep(50 * time.Millisecond)
	hook.mu.Lock()
	drainedEarly := hook.drained
	hook.mu.Unlock()
	require.False(t, drainedEarly, "hooks drained while a sweep was still running")

	close(gs.release)
	require.NoError(t, <-stopped)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.True(t, hook.drained)
	require.Equal(t, 1, hook.seenAtDrain)

	sub, err := mem.GetSubscription(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusExpired, sub.Status)
}
