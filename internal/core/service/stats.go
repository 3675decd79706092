// Package service provides domain services for KeyMesh.
package service

import (
	"context"
	"log/slog"

	"github.com/yndnr/keymesh-go/internal/core/domain"
)

// StatsService aggregates issuance and binding counters for the admin
// surface. Reads only; no invariants of its own.
type StatsService struct {
	store  Store
	logger *slog.Logger
}

// NewStatsService creates a new StatsService.
func NewStatsService(store Store, logger *slog.Logger) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsService{
		store:  store,
		logger: logger,
	}
}

// StatsResponse contains the aggregated counters.
type StatsResponse struct {
	Codes   map[domain.LicenseKind]CodeKindStats
	Devices DeviceStats
}

// Stats returns per-kind code counts and device binding counts.
func (s *StatsService) Stats(ctx context.Context) (*StatsResponse, error) {
	codes, err := s.store.CodeStats(ctx)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}

	devices, err := s.store.DeviceStats(ctx)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}

	return &StatsResponse{
		Codes:   codes,
		Devices: devices,
	}, nil
}
