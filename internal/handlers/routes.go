package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/quota-gate/internal/ratelimit"
)

// RegisterRoutes registers the demo and quota routes.
// Introspection endpoints are exempt from the quota they report on.
func RegisterRoutes(api huma.API, h *QuotaHandler) {
	// GET / - rate limited demo route
	huma.Register(api, huma.Operation{
		Method:  http.MethodGet,
		Path:    "/",
		Summary: "Greeting",
		Tags:    []string{"Demo"},
	}, h.Greet)

	huma.Register(api, huma.Operation{
		Method:      http.MethodGet,
		Path:        "/quota/status",
		Summary:     "Quota status",
		Description: "Reports limiter configuration and the number of tracked clients.",
		Tags:        []string{"Quota"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Status)

	huma.Register(api, huma.Operation{
		Method:      http.MethodGet,
		Path:        "/quota/stats",
		Summary:     "Quota decision totals",
		Description: "Reports how many requests were admitted and rejected.",
		Tags:        []string{"Quota"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Stats)
}
