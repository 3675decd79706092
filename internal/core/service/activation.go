// Package service provides domain services for KeyMesh.
package service

import (
	"context"
	"log/slog"

	"github.com/yndnr/keymesh-go/internal/core/domain"
)

// ActivationService handles code redemption and license verification.
//
// States per (code, device) pair: a code moves Unredeemed -> Redeemed,
// a device moves Unbound -> Active -> Expired. Expiry is lazy: it is
// detected on verification only, never by a background sweep.
type ActivationService struct {
	store  Store
	clock  domain.Clock
	logger *slog.Logger
}

// NewActivationService creates a new ActivationService.
// A nil clock defaults to the system clock.
func NewActivationService(store Store, clock domain.Clock, logger *slog.Logger) *ActivationService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivationService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// ============================================================================
// Activate Operation
// ============================================================================

// ActivateRequest contains parameters for device activation.
type ActivateRequest struct {
	DeviceID string // Required
	Code     string // Required, full activation code string
}

// ActivateResponse contains the granted license on success.
type ActivateResponse struct {
	Kind         domain.LicenseKind
	ExpiresAt    int64 // License deadline (Unix milliseconds)
	DurationDays int
	Binding      *domain.DeviceBinding
}

// Activate redeems an activation code for a device.
//
// Validation order: code shape, device-already-active, then the atomic
// check-and-consume in storage. Business rejections (CodeNotFound,
// CodeExpired, CodeExhausted, DeviceAlreadyActive) surface verbatim;
// they are expected outcomes, not opaque failures.
func (s *ActivationService) Activate(ctx context.Context, req *ActivateRequest) (*ActivateResponse, error) {
	// 1. Validate arguments
	if req.DeviceID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("device_id is required")
	}
	if len(req.DeviceID) > domain.MaxDeviceIDLength {
		return nil, domain.ErrInvalidArgument.WithDetails("device_id exceeds 128 characters")
	}

	// 2. Validate code shape against the closed prefix set.
	// Cheap, storage-free, always safe to retry with corrected input.
	if !domain.ValidateCodeFormat(req.Code) {
		return nil, domain.ErrCodeMalformed
	}

	now := s.clock.Now()

	// 3. Reject early if the device already holds an active license.
	// This is a courtesy pre-check; RedeemAndBind re-validates inside
	// the transaction, which is what actually serializes racers.
	existing, err := s.store.GetBinding(ctx, req.DeviceID)
	switch {
	case err == nil:
		if existing.Active && !existing.Expired(now) {
			return nil, domain.ErrDeviceAlreadyActive
		}
	case domain.IsDomainError(err, domain.ErrDeviceNotFound.Code):
		// Unbound device, normal path.
	default:
		return nil, domain.ErrStorageError.WithCause(err)
	}

	// 4. Atomically consume quota and create the binding.
	code, binding, err := s.store.RedeemAndBind(ctx, req.Code, req.DeviceID, now)
	if err != nil {
		if domain.IsDomainError(err, "") {
			return nil, err
		}
		// Activate is not blindly retryable on storage failures, but the
		// atomic unit guarantees a failed attempt consumed nothing.
		return nil, domain.ErrStorageError.WithCause(err)
	}

	s.logger.Info("device activated",
		"device_id", req.DeviceID,
		"code", domain.MaskCode(code.Code),
		"license_kind", code.Kind,
		"expires_at", binding.ExpiresAtTime(),
		"remaining_uses", code.RemainingUses())

	return &ActivateResponse{
		Kind:         code.Kind,
		ExpiresAt:    binding.ExpiresAt,
		DurationDays: code.DurationDays,
		Binding:      binding,
	}, nil
}

// ============================================================================
// Verify Operation
// ============================================================================

// VerifyRequest contains parameters for license verification.
type VerifyRequest struct {
	DeviceID string // Required
}

// VerifyResponse is the structured verification result. An unknown,
// inactive, or expired device yields Valid=false, never an error.
type VerifyResponse struct {
	Valid         bool
	Kind          domain.LicenseKind
	ExpiresAt     int64 // Unix milliseconds, zero when invalid
	DaysRemaining int
	IsTrial       bool

	// Expired reports that this call performed the lazy expiry
	// transition. False on later verifications of the same device.
	Expired bool
}

// Verify checks whether a device holds a valid, unexpired license.
//
// This is the sole expiry-detection path: the first verification past
// the deadline flips the binding inactive, and the result stays invalid
// afterwards (expiry is sticky).
func (s *ActivationService) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	// 1. Validate arguments
	if req.DeviceID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("device_id is required")
	}

	now := s.clock.Now()

	// 2. Look up the binding; absence is a normal outcome.
	binding, err := s.store.GetBinding(ctx, req.DeviceID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrDeviceNotFound.Code) {
			return &VerifyResponse{Valid: false}, nil
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}

	// 3. A deactivated binding stays invalid.
	if !binding.Active {
		return &VerifyResponse{Valid: false}, nil
	}

	// 4. Lazy expiry transition.
	if binding.Expired(now) {
		if err := s.store.DeactivateBinding(ctx, req.DeviceID); err != nil {
			// The result is invalid either way; the flip retries on
			// the next verification.
			s.logger.Warn("deactivate expired binding failed",
				"device_id", req.DeviceID,
				"error", err)
		} else {
			s.logger.Info("license expired",
				"device_id", req.DeviceID,
				"license_kind", binding.Kind,
				"expired_at", binding.ExpiresAtTime())
		}
		return &VerifyResponse{Valid: false, Expired: true}, nil
	}

	// 5. Valid license: record the sighting.
	if err := s.store.TouchBinding(ctx, req.DeviceID, now); err != nil {
		s.logger.Warn("touch binding failed",
			"device_id", req.DeviceID,
			"error", err)
	}

	return &VerifyResponse{
		Valid:         true,
		Kind:          binding.Kind,
		ExpiresAt:     binding.ExpiresAt,
		DaysRemaining: binding.DaysRemaining(now),
		IsTrial:       binding.IsTrial(),
	}, nil
}
