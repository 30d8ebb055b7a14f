package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/subscriptions/internal/app/api/handlers"
	"github.com/fatflowers/subscriptions/internal/app/api/server"
	"github.com/fatflowers/subscriptions/internal/app/service/auditlog"
	"github.com/fatflowers/subscriptions/internal/app/service/auth"
	"github.com/fatflowers/subscriptions/internal/app/service/events"
	"github.com/fatflowers/subscriptions/internal/app/service/plan"
	"github.com/fatflowers/subscriptions/internal/app/service/statistics"
	"github.com/fatflowers/subscriptions/internal/app/service/subscription"
	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/platform/cache"
	"github.com/fatflowers/subscriptions/internal/platform/db"
	"github.com/fatflowers/subscriptions/internal/platform/mq"
	"github.com/fatflowers/subscriptions/pkg/config"
	"github.com/fatflowers/subscriptions/pkg/logger"
	"github.com/fatflowers/subscriptions/pkg/metrics"
	"github.com/fatflowers/subscriptions/pkg/tool"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	cache.Module,
	mq.Module,
	store.Module,
	fx.Provide(
		tool.NewSystemClock,
		func(s *auditlog.Service) handlers.HistoryReader { return s },
	),
	auth.Module,
	plan.Module,
	subscription.Module,
	auditlog.Module,
	events.Module,
	statistics.Module,
	server.Module,
)
