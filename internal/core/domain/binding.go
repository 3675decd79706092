// Package domain defines the core domain models for KeyMesh.
package domain

import (
	"strings"
	"time"
)

// MaxDeviceIDLength bounds caller-supplied device identifiers.
const MaxDeviceIDLength = 128

// DeviceBinding associates a device identifier with a redeemed license.
//
// A binding is created on first successful redemption and never deleted.
// Active is a status, not an existence predicate: an inactive binding is
// superseded in place when the device redeems a fresh code, so a device
// whose license expired can always re-register. At most one active
// binding exists per device at any time.
type DeviceBinding struct {
	// DeviceID is the caller-supplied device identifier.
	DeviceID string `json:"device_id"`

	// SourceCode is the activation code that produced this binding.
	SourceCode string `json:"source_code"`

	// Kind is the granted license kind.
	Kind LicenseKind `json:"license_kind"`

	// ActivatedAt is the redemption timestamp (Unix milliseconds).
	ActivatedAt int64 `json:"activated_at"`

	// ExpiresAt is the license deadline (Unix milliseconds). It is a
	// pure function of redemption time and the code's duration and is
	// never recomputed after creation.
	ExpiresAt int64 `json:"expires_at"`

	// LastSeenAt is updated on every verification (Unix milliseconds).
	LastSeenAt int64 `json:"last_seen_at"`

	// Active is true until a verification observes the deadline passed.
	Active bool `json:"is_active"`
}

// NewDeviceBinding creates the binding produced by redeeming the given
// code at the given time. Lifetime licenses use the same sentinel
// duration as every other kind, so the arithmetic stays total.
func NewDeviceBinding(deviceID string, code *ActivationCode, now time.Time) *DeviceBinding {
	nowMs := now.UnixMilli()
	return &DeviceBinding{
		DeviceID:    deviceID,
		SourceCode:  code.Code,
		Kind:        code.Kind,
		ActivatedAt: nowMs,
		ExpiresAt:   nowMs + int64(code.DurationDays)*millisPerDay,
		LastSeenAt:  nowMs,
		Active:      true,
	}
}

// Expired reports whether the license deadline has passed.
func (b *DeviceBinding) Expired(now time.Time) bool {
	return now.UnixMilli() > b.ExpiresAt
}

// DaysRemaining returns the remaining whole days until the deadline,
// floored. Negative once the deadline has passed.
func (b *DeviceBinding) DaysRemaining(now time.Time) int {
	remaining := b.ExpiresAt - now.UnixMilli()
	if remaining < 0 {
		// Floor division toward negative infinity is not needed here;
		// callers only use negative values as "expired".
		return int((remaining - millisPerDay + 1) / millisPerDay)
	}
	return int(remaining / millisPerDay)
}

// Touch updates the LastSeenAt timestamp.
func (b *DeviceBinding) Touch(now time.Time) {
	b.LastSeenAt = now.UnixMilli()
}

// Deactivate flips the binding inactive. Idempotent.
func (b *DeviceBinding) Deactivate() {
	b.Active = false
}

// IsTrial reports whether the binding grants a trial license.
func (b *DeviceBinding) IsTrial() bool {
	return b.Kind.IsTrial()
}

// Validate validates the binding fields.
func (b *DeviceBinding) Validate() error {
	var violations []string

	if b.DeviceID == "" {
		violations = append(violations, "device_id is required")
	}
	if len(b.DeviceID) > MaxDeviceIDLength {
		violations = append(violations, "device_id exceeds 128 characters")
	}
	if b.SourceCode == "" {
		violations = append(violations, "source_code is required")
	}
	if !b.Kind.Valid() {
		violations = append(violations, "license_kind is unknown")
	}

	if len(violations) > 0 {
		return ErrDeviceValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a copy of the binding.
func (b *DeviceBinding) Clone() *DeviceBinding {
	clone := *b
	return &clone
}

// ActivatedAtTime returns ActivatedAt as time.Time.
func (b *DeviceBinding) ActivatedAtTime() time.Time {
	return time.UnixMilli(b.ActivatedAt)
}

// ExpiresAtTime returns ExpiresAt as time.Time.
func (b *DeviceBinding) ExpiresAtTime() time.Time {
	return time.UnixMilli(b.ExpiresAt)
}

// LastSeenAtTime returns LastSeenAt as time.Time.
func (b *DeviceBinding) LastSeenAtTime() time.Time {
	return time.UnixMilli(b.LastSeenAt)
}
