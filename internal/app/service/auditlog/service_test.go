package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/subscriptions/internal/app/service/subscription"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/internal/platform/db/dbtest"
	"github.com/fatflowers/subscriptions/pkg/tool"
	"github.com/fatflowers/subscriptions/pkg/types"
)

func TestOnSubscriptionChange_PersistsSnapshots(t *testing.T) {
	gdb := dbtest.NewPostgres(t)
	svc := New(gdb, zap.NewNop().Sugar())
	ctx := context.Background()

	subID := tool.GenerateUUIDV7()
	userID := tool.GenerateUUIDV7()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := &models.Subscription{ID: subID, UserID: userID, PlanID: tool.GenerateUUIDV7(), Status: types.SubscriptionStatusActive}
	after := before.Clone()
	after.Status = types.SubscriptionStatusCancelled
	after.CancelledAt = &at

	svc.OnSubscriptionChange(ctx, subscription.Change{Reason: types.SubscriptionChangeReasonCreate, After: before, Actor: userID, At: at.Add(-time.Hour)})
	svc.OnSubscriptionChange(ctx, subscription.Change{Reason: types.SubscriptionChangeReasonCancel, Before: before, After: after, Actor: userID, At: at})
	svc.Wait()

	logs, err := svc.History(ctx, subID)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	latest := logs[0]
	assert.Equal(t, types.SubscriptionChangeReasonCancel, latest.Reason)
	assert.Equal(t, userID, latest.Actor)
	assert.Equal(t, types.SubscriptionStatusActive, latest.Before.Data().Status)
	assert.Equal(t, types.SubscriptionStatusCancelled, latest.After.Data().Status)

	assert.Nil(t, logs[1].Before.Data())
}
