// Package memory provides in-memory storage for KeyMesh.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/yndnr/keymesh-go/internal/core/domain"
	"github.com/yndnr/keymesh-go/internal/core/service"
)

// Store is an in-memory implementation of service.Store.
//
// One mutex guards both tables. Redemption must update a code and a
// binding in a single indivisible step, so per-record or sharded
// locking buys nothing here; the global lock is the atomic unit.
type Store struct {
	mu       sync.RWMutex
	codes    map[string]*domain.ActivationCode
	bindings map[string]*domain.DeviceBinding
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		codes:    make(map[string]*domain.ActivationCode),
		bindings: make(map[string]*domain.DeviceBinding),
	}
}

// InsertCode stores a new activation code.
func (s *Store) InsertCode(_ context.Context, code *domain.ActivationCode) error {
	if err := code.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		return domain.ErrCodeConflict
	}
	s.codes[code.Code] = code.Clone()
	return nil
}

// GetCode retrieves a code by its code string.
func (s *Store) GetCode(_ context.Context, codeStr string) (*domain.ActivationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code, ok := s.codes[codeStr]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	// Return a clone to prevent external modification.
	return code.Clone(), nil
}

// CodeStats returns per-kind issued/redeemed counts.
func (s *Store) CodeStats(_ context.Context) (map[domain.LicenseKind]service.CodeKindStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[domain.LicenseKind]service.CodeKindStats)
	for _, code := range s.codes {
		entry := stats[code.Kind]
		entry.Issued++
		if code.Redeemed {
			entry.Redeemed++
		}
		stats[code.Kind] = entry
	}
	return stats, nil
}

// GetBinding retrieves the binding for a device.
func (s *Store) GetBinding(_ context.Context, deviceID string) (*domain.DeviceBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, ok := s.bindings[deviceID]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	return binding.Clone(), nil
}

// Bind stores a binding with replace-or-insert semantics.
func (s *Store) Bind(_ context.Context, binding *domain.DeviceBinding) error {
	if err := binding.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bindLocked(binding)
}

// bindLocked performs the active-conflict check and write. Callers hold mu.
func (s *Store) bindLocked(binding *domain.DeviceBinding) error {
	if existing, ok := s.bindings[binding.DeviceID]; ok {
		if existing.Active && !existing.Expired(binding.ActivatedAtTime()) {
			return domain.ErrDeviceAlreadyActive
		}
		// Inactive or expired bindings are superseded in place.
	}
	s.bindings[binding.DeviceID] = binding.Clone()
	return nil
}

// TouchBinding updates the binding's last-seen timestamp.
func (s *Store) TouchBinding(_ context.Context, deviceID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[deviceID]
	if !ok {
		return domain.ErrDeviceNotFound
	}
	binding.Touch(now)
	return nil
}

// DeactivateBinding flips the binding inactive. Idempotent.
func (s *Store) DeactivateBinding(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[deviceID]
	if !ok {
		return domain.ErrDeviceNotFound
	}
	binding.Deactivate()
	return nil
}

// DeviceStats returns active/total binding counts.
func (s *Store) DeviceStats(_ context.Context) (service.DeviceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := service.DeviceStats{Total: len(s.bindings)}
	for _, binding := range s.bindings {
		if binding.Active {
			stats.Active++
		}
	}
	return stats, nil
}

// RedeemAndBind atomically redeems a code and binds the device.
// Rejection reasons follow the priority order: not found, validity
// window elapsed, quota exhausted, device already active.
func (s *Store) RedeemAndBind(_ context.Context, codeStr, deviceID string, now time.Time) (*domain.ActivationCode, *domain.DeviceBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[codeStr]
	if !ok {
		return nil, nil, domain.ErrCodeNotFound
	}
	if code.WindowElapsed(now) {
		return nil, nil, domain.ErrCodeExpired
	}
	if code.Exhausted() {
		return nil, nil, domain.ErrCodeExhausted
	}
	if existing, ok := s.bindings[deviceID]; ok {
		if existing.Active && !existing.Expired(now) {
			return nil, nil, domain.ErrDeviceAlreadyActive
		}
	}

	code.Consume(deviceID, now)
	binding := domain.NewDeviceBinding(deviceID, code, now)
	s.bindings[deviceID] = binding

	return code.Clone(), binding.Clone(), nil
}

// CodeCount returns the total number of stored codes.
func (s *Store) CodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

// BindingCount returns the total number of stored bindings.
func (s *Store) BindingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}
