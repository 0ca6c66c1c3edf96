package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-gate/internal/ratelimit"
	"github.com/serroba/quota-gate/internal/stats"
)

// StatusProvider exposes the limiter's configuration and occupancy.
type StatusProvider interface {
	Status() ratelimit.Status
}

// QuotaHandler serves the demo route and quota introspection endpoints.
type QuotaHandler struct {
	limiter  StatusProvider
	recorder stats.Recorder
}

// NewQuotaHandler creates a new quota handler.
func NewQuotaHandler(limiter StatusProvider, recorder stats.Recorder) *QuotaHandler {
	return &QuotaHandler{limiter: limiter, recorder: recorder}
}

// GreetingResponse is the response for the demo route.
type GreetingResponse struct {
	Body struct {
		Message string `json:"message"`
	}
}

// StatusResponse describes the limiter configuration and store size.
type StatusResponse struct {
	Body struct {
		Limit                  uint64    `json:"limit"`
		RefreshIntervalSeconds int64     `json:"refreshIntervalSeconds"`
		Entries                int       `json:"entries"`
		AutoPurge              bool      `json:"autoPurge"`
		PurgeIntervalSeconds   int64     `json:"purgeIntervalSeconds"`
		LastPurge              time.Time `json:"lastPurge"`
	}
}

// StatsResponse reports cumulative admission decisions.
type StatsResponse struct {
	Body stats.Totals
}

func (h *QuotaHandler) Greet(_ context.Context, _ *struct{}) (*GreetingResponse, error) {
	resp := &GreetingResponse{}
	resp.Body.Message = "Hello, world!"

	return resp, nil
}

func (h *QuotaHandler) Status(_ context.Context, _ *struct{}) (*StatusResponse, error) {
	status := h.limiter.Status()

	resp := &StatusResponse{}
	resp.Body.Limit = status.Limit
	resp.Body.RefreshIntervalSeconds = int64(status.RefreshInterval / time.Second)
	resp.Body.Entries = status.Entries
	resp.Body.AutoPurge = status.AutoPurge
	resp.Body.PurgeIntervalSeconds = int64(status.PurgeInterval / time.Second)
	resp.Body.LastPurge = status.LastPurge

	return resp, nil
}

func (h *QuotaHandler) Stats(ctx context.Context, _ *struct{}) (*StatsResponse, error) {
	totals, err := h.recorder.Totals(ctx)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("stats unavailable", err)
	}

	return &StatsResponse{Body: totals}, nil
}
