// Package httpserver provides the HTTP server for KeyMesh.
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/keymesh-go/internal/core/service"
	"github.com/yndnr/keymesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
	"github.com/yndnr/keymesh-go/pkg/crypto/seal"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// ActivationService handles redemption and verification.
	ActivationService *service.ActivationService

	// IssueService handles code issuance.
	IssueService *service.IssueService

	// StatsService aggregates counters for the admin surface.
	StatsService *service.StatsService

	// Metrics is the telemetry registry. Required.
	Metrics *metric.Registry

	// Backup streams storage backups; nil disables the backup endpoint
	// (in-memory storage has nothing durable to back up).
	Backup handler.BackupSource

	// Sealer encrypts backup streams; nil means no backup key is
	// configured and backup requests are refused.
	Sealer *seal.Sealer

	// Logger for request logging.
	Logger *slog.Logger

	// AdminNetworks are IPs/CIDRs allowed on /admin endpoints in
	// addition to loopback, which is always allowed.
	AdminNetworks []string

	// ActivateRPS is the per-IP rate limit for activation requests
	// (requests/second). Zero disables limiting.
	ActivateRPS float64

	// ActivateBurst is the token bucket burst for activation requests.
	ActivateBurst int

	// EnableAudit enables request logging for API and admin routes.
	EnableAudit bool
}

// NewRouter creates and configures the HTTP router with all routes
// and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	h := handler.New(&handler.Config{
		Activation: cfg.ActivationService,
		Issue:      cfg.IssueService,
		Stats:      cfg.StatsService,
		Metrics:    cfg.Metrics,
		Backup:     cfg.Backup,
		Sealer:     cfg.Sealer,
		Logger:     cfg.Logger,
	})

	mux := http.NewServeMux()

	// Probe endpoints carry the minimal chain; they are hit often and
	// by machines.
	probeChain := []Middleware{
		Recover(cfg.Logger),
		RequestID(),
	}
	mux.Handle("GET /health", Chain(h, probeChain...))
	mux.Handle("GET /ready", Chain(h, probeChain...))
	mux.Handle("GET /metrics", Chain(h, probeChain...))

	// Device-facing API. Activation is the abuse-prone path and is the
	// only rate-limited route.
	apiChain := func(route string, extra ...Middleware) []Middleware {
		chain := []Middleware{
			Recover(cfg.Logger),
			RequestID(),
		}
		chain = append(chain, extra...)
		if cfg.EnableAudit {
			chain = append(chain, Audit(cfg.Logger))
		}
		chain = append(chain, Metrics(cfg.Metrics, route))
		return chain
	}

	mux.Handle("POST /api/v1/activate", Chain(h,
		apiChain("/api/v1/activate", RateLimit(cfg.ActivateRPS, cfg.ActivateBurst))...))
	mux.Handle("POST /api/v1/verify", Chain(h,
		apiChain("/api/v1/verify")...))

	// Admin surface. Always behind the network ACL; an empty allowlist
	// means loopback only.
	acl := NetworkACL(&NetworkACLConfig{
		AllowList: cfg.AdminNetworks,
		Logger:    cfg.Logger,
	})

	mux.Handle("POST /admin/v1/codes", Chain(h,
		apiChain("/admin/v1/codes", acl)...))
	mux.Handle("GET /admin/v1/stats", Chain(h,
		apiChain("/admin/v1/stats", acl)...))
	mux.Handle("POST /admin/v1/backups", Chain(h,
		apiChain("/admin/v1/backups", acl)...))

	return mux
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		ActivateRPS:   5.0,
		ActivateBurst: 10,
		EnableAudit:   true,
	}
}
