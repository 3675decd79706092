// Package service provides domain services for KeyMesh.
package service

import (
	"context"
	"time"

	"github.com/yndnr/keymesh-go/internal/core/domain"
)

// CodeKindStats holds per-kind code counters for the stats surface.
type CodeKindStats struct {
	Issued   int `json:"issued"`
	Redeemed int `json:"redeemed"`
}

// DeviceStats holds device binding counters for the stats surface.
type DeviceStats struct {
	Active int `json:"active"`
	Total  int `json:"total"`
}

// CodeRepository defines the storage interface for activation codes.
type CodeRepository interface {
	// InsertCode stores a new, unused activation code.
	// Returns ErrCodeConflict if the code string already exists.
	InsertCode(ctx context.Context, code *domain.ActivationCode) error

	// GetCode retrieves a code by its code string.
	// Returns ErrCodeNotFound if absent.
	GetCode(ctx context.Context, code string) (*domain.ActivationCode, error)

	// CodeStats returns per-kind issued/redeemed counts.
	CodeStats(ctx context.Context) (map[domain.LicenseKind]CodeKindStats, error)
}

// DeviceRepository defines the storage interface for device bindings.
type DeviceRepository interface {
	// GetBinding retrieves the binding for a device.
	// Returns ErrDeviceNotFound if the device was never bound.
	GetBinding(ctx context.Context, deviceID string) (*domain.DeviceBinding, error)

	// Bind stores a binding with replace-or-insert semantics keyed by
	// device identity. Returns ErrDeviceAlreadyActive if an active,
	// unexpired binding exists; an inactive or expired one is
	// superseded in place.
	Bind(ctx context.Context, binding *domain.DeviceBinding) error

	// TouchBinding updates the binding's last-seen timestamp.
	// Independent of license validity; always allowed for a bound device.
	TouchBinding(ctx context.Context, deviceID string, now time.Time) error

	// DeactivateBinding flips the binding inactive. Idempotent.
	DeactivateBinding(ctx context.Context, deviceID string) error

	// DeviceStats returns active/total binding counts.
	DeviceStats(ctx context.Context) (DeviceStats, error)
}

// Store is the full storage contract for the activation state machine.
//
// RedeemAndBind is the heart of it: one atomic unit of work that
// re-validates the code (exists, window open, quota remaining) and the
// device (no active binding), consumes one quota use, and writes the
// binding. Implementations must serialize concurrent redemptions of the
// same code inside this operation so the total number of successes never
// exceeds the quota; a read-check-then-write across two calls is the
// classic bug this contract exists to forbid. Because both writes commit
// together, quota can never be consumed without a matching binding.
type Store interface {
	CodeRepository
	DeviceRepository

	// RedeemAndBind atomically redeems codeStr for deviceID at the
	// given time and creates/supersedes the device binding.
	// Returns, in priority order: ErrCodeNotFound, ErrCodeExpired,
	// ErrCodeExhausted, ErrDeviceAlreadyActive.
	RedeemAndBind(ctx context.Context, codeStr, deviceID string, now time.Time) (*domain.ActivationCode, *domain.DeviceBinding, error)
}
