package handlers

import (
	"github.com/fatflowers/subscriptions/internal/app/service/auth"
	"github.com/fatflowers/subscriptions/internal/app/service/statistics"
	subsvc "github.com/fatflowers/subscriptions/internal/app/service/subscription"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/response"
)

// Envelope types below exist for the API docs only.

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespError carries the failure detail as data.
type RespError struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    string                   `json:"data"`
}

type RespUser struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.User              `json:"data"`
}

type RespToken struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    auth.TokenResponse       `json:"data"`
}

type RespPlan struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Plan              `json:"data"`
}

type RespPlans struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Plan            `json:"data"`
}

type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Subscription      `json:"data"`
}

type RespSubscriptions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Subscription    `json:"data"`
}

type RespSubscriptionDetail struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    subsvc.Detail            `json:"data"`
}

type RespSubscriptionHistory struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.SubscriptionLog `json:"data"`
}

type RespCheckExpired struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CheckExpiredResponse     `json:"data"`
}

// RespScanSubscriptions wraps ScanSubscriptionsResponse in the standard envelope.
type RespScanSubscriptions struct {
	Code    response.APIResponseCode             `json:"code"`
	Message string                               `json:"message"`
	Data    statistics.ScanSubscriptionsResponse `json:"data"`
}

// RespStatistic wraps StatisticResponse in the standard envelope.
type RespStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}
