package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/app/store/storetest"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/metrics"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingHook struct {
	mu      sync.Mutex
	changes []Change
}

func (h *recordingHook) OnSubscriptionChange(_ context.Context, c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, c)
}

func (h *recordingHook) reasons() []types.SubscriptionChangeReason {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.SubscriptionChangeReason, 0, len(h.changes))
	for _, c := range h.changes {
		out = append(out, c.Reason)
	}
	return out
}

type fixture struct {
	svc   *Service
	store *storetest.Memory
	clock *tool.FakeClock
	hook  *recordingHook
	m     *metrics.Business
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.NewMemory()
	clock := tool.NewFakeClock(t0)
	hook := &recordingHook{}
	m, err := metrics.NewBusiness(prometheus.NewRegistry())
	require.NoError(t, err)
	svc := NewService(st, clock, zap.NewNop().Sugar(), m, []ChangeHook{hook})
	return &fixture{svc: svc, store: st, clock: clock, hook: hook, m: m}
}

func (f *fixture) addUser(t *testing.T, id string) *types.Requester {
	t.Helper()
	require.NoError(t, f.store.CreateUser(context.Background(), &models.User{
		ID: id, Email: id + "@example.com", Username: id, PasswordHash: "x", IsActive: true,
	}))
	return &types.Requester{UserID: id, Username: id}
}

func (f *fixture) addPlan(t *testing.T, id string, days int, active bool) {
	t.Helper()
	require.NoError(t, f.store.CreatePlan(context.Background(), &models.Plan{
		ID: id, Name: id, Price: 999, DurationDays: days, IsActive: active,
	}))
}

var admin = &types.Requester{UserID: "admin", Username: "admin", IsAdmin: true}

func storeQuery(status types.SubscriptionStatus) store.SubscriptionQuery {
	return store.SubscriptionQuery{Status: status}
}

func typesPage() types.Page {
	return types.Page{}
}
