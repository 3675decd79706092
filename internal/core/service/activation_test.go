// Package service provides domain services for KeyMesh.
package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/keymesh-go/internal/core/domain"
)

// fakeClock is a settable clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockStore is an in-memory Store for testing. A single mutex makes
// RedeemAndBind atomic, matching the real storage contract.
type mockStore struct {
	mu       sync.Mutex
	codes    map[string]*domain.ActivationCode
	bindings map[string]*domain.DeviceBinding
}

func newMockStore() *mockStore {
	return &mockStore{
		codes:    make(map[string]*domain.ActivationCode),
		bindings: make(map[string]*domain.DeviceBinding),
	}
}

func (m *mockStore) InsertCode(_ context.Context, code *domain.ActivationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.codes[code.Code]; exists {
		return domain.ErrCodeConflict
	}
	m.codes[code.Code] = code.Clone()
	return nil
}

func (m *mockStore) GetCode(_ context.Context, code string) (*domain.ActivationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	return c.Clone(), nil
}

func (m *mockStore) CodeStats(_ context.Context) (map[domain.LicenseKind]CodeKindStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[domain.LicenseKind]CodeKindStats)
	for _, c := range m.codes {
		s := stats[c.Kind]
		s.Issued++
		if c.Redeemed {
			s.Redeemed++
		}
		stats[c.Kind] = s
	}
	return stats, nil
}

func (m *mockStore) GetBinding(_ context.Context, deviceID string) (*domain.DeviceBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[deviceID]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	return b.Clone(), nil
}

func (m *mockStore) Bind(_ context.Context, binding *domain.DeviceBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.bindings[binding.DeviceID]; ok {
		if existing.Active && !existing.Expired(binding.ActivatedAtTime()) {
			return domain.ErrDeviceAlreadyActive
		}
	}
	m.bindings[binding.DeviceID] = binding.Clone()
	return nil
}

func (m *mockStore) TouchBinding(_ context.Context, deviceID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[deviceID]
	if !ok {
		return domain.ErrDeviceNotFound
	}
	b.Touch(now)
	return nil
}

func (m *mockStore) DeactivateBinding(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[deviceID]
	if !ok {
		return domain.ErrDeviceNotFound
	}
	b.Deactivate()
	return nil
}

func (m *mockStore) DeviceStats(_ context.Context) (DeviceStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := DeviceStats{Total: len(m.bindings)}
	for _, b := range m.bindings {
		if b.Active {
			stats.Active++
		}
	}
	return stats, nil
}

func (m *mockStore) RedeemAndBind(_ context.Context, codeStr, deviceID string, now time.Time) (*domain.ActivationCode, *domain.DeviceBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, ok := m.codes[codeStr]
	if !ok {
		return nil, nil, domain.ErrCodeNotFound
	}
	if code.WindowElapsed(now) {
		return nil, nil, domain.ErrCodeExpired
	}
	if code.Exhausted() {
		return nil, nil, domain.ErrCodeExhausted
	}
	if existing, ok := m.bindings[deviceID]; ok {
		if existing.Active && !existing.Expired(now) {
			return nil, nil, domain.ErrDeviceAlreadyActive
		}
	}

	code.Consume(deviceID, now)
	binding := domain.NewDeviceBinding(deviceID, code, now)
	m.bindings[deviceID] = binding

	return code.Clone(), binding.Clone(), nil
}

// seedCode inserts a fresh code of the given kind and returns its string.
func seedCode(t *testing.T, store *mockStore, kind domain.LicenseKind, now time.Time) *domain.ActivationCode {
	t.Helper()
	code, err := domain.NewActivationCode(kind, "admin", now)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.InsertCode(context.Background(), code); err != nil {
		t.Fatal(err)
	}
	return code
}

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *mockStore, clock domain.Clock) *ActivationService {
	return NewActivationService(store, clock, nil)
}

func TestActivateSuccess(t *testing.T) {
	store := newMockStore()
	clock := newFakeClock(testEpoch)
	svc := newTestService(store, clock)
	code := seedCode(t, store, domain.KindWeek, testEpoch)

	resp, err := svc.Activate(context.Background(), &ActivateRequest{
		DeviceID: "d1",
		Code:     code.Code,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if resp.Kind != domain.KindWeek {
		t.Errorf("Kind = %s", resp.Kind)
	}
	if resp.DurationDays != 7 {
		t.Errorf("DurationDays = %d, want 7", resp.DurationDays)
	}
	wantExpiry := testEpoch.AddDate(0, 0, 7).UnixMilli()
	if resp.ExpiresAt != wantExpiry {
		t.Errorf("ExpiresAt = %d, want %d", resp.ExpiresAt, wantExpiry)
	}

	// Verify immediately with the same now.
	vr, err := svc.Verify(context.Background(), &VerifyRequest{DeviceID: "d1"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !vr.Valid {
		t.Fatal("fresh activation should verify valid")
	}
	if vr.DaysRemaining != 7 {
		t.Errorf("DaysRemaining = %d, want 7", vr.DaysRemaining)
	}
	if vr.IsTrial {
		t.Error("WEEK_7D is not a trial")
	}
}

func TestActivateMalformedCode(t *testing.T) {
	svc := newTestService(newMockStore(), newFakeClock(testEpoch))

	tests := []string{
		"",
		"not-a-code",
		"YEAR_1Y_3F0A9C2D41EB",
		"WEEK_7D_short",
	}
	for _, code := range tests {
		_, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: code})
		if !domain.IsDomainError(err, domain.ErrCodeMalformed.Code) {
			t.Errorf("Activate(%q) = %v, want ErrCodeMalformed", code, err)
		}
	}
}

func TestActivateRejectionPriority(t *testing.T) {
	store := newMockStore()
	clock := newFakeClock(testEpoch)
	svc := newTestService(store, clock)

	// Unknown but well-formed code.
	_, err := svc.Activate(context.Background(), &ActivateRequest{
		DeviceID: "d1",
		Code:     "WEEK_7D_0123456789AB",
	})
	if !domain.IsDomainError(err, domain.ErrCodeNotFound.Code) {
		t.Errorf("unknown code: got %v, want ErrCodeNotFound", err)
	}

	// Elapsed validity window.
	trial := seedCode(t, store, domain.KindTrialDay, testEpoch)
	clock.Advance(25 * time.Hour)
	_, err = svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: trial.Code})
	if !domain.IsDomainError(err, domain.ErrCodeExpired.Code) {
		t.Errorf("elapsed window: got %v, want ErrCodeExpired", err)
	}
}

func TestActivateDeviceAlreadyActive(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, newFakeClock(testEpoch))
	first := seedCode(t, store, domain.KindMonth, testEpoch)
	second := seedCode(t, store, domain.KindWeek, testEpoch)

	if _, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: first.Code}); err != nil {
		t.Fatal(err)
	}

	// Any code is rejected while the device is active.
	_, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: second.Code})
	if !domain.IsDomainError(err, domain.ErrDeviceAlreadyActive.Code) {
		t.Errorf("got %v, want ErrDeviceAlreadyActive", err)
	}

	// The rejected attempt must not have consumed the second code.
	c, err := store.GetCode(context.Background(), second.Code)
	if err != nil {
		t.Fatal(err)
	}
	if c.CurrentUses != 0 {
		t.Errorf("rejected activation consumed quota: CurrentUses = %d", c.CurrentUses)
	}
}

func TestActivateQuotaExhausted(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, newFakeClock(testEpoch))
	code := seedCode(t, store, domain.KindTrialDay, testEpoch)

	if _, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: code.Code}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d2", Code: code.Code})
	if !domain.IsDomainError(err, domain.ErrCodeExhausted.Code) {
		t.Errorf("got %v, want ErrCodeExhausted", err)
	}
}

func TestConcurrentRedemptionsRespectQuota(t *testing.T) {
	store := newMockStore()
	clock := newFakeClock(testEpoch)
	svc := newTestService(store, clock)

	code, err := domain.NewActivationCode(domain.KindWeek, "admin", testEpoch)
	if err != nil {
		t.Fatal(err)
	}
	code.MaxUses = 3
	if err := store.InsertCode(context.Background(), code); err != nil {
		t.Fatal(err)
	}

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(device int) {
			defer wg.Done()
			_, err := svc.Activate(context.Background(), &ActivateRequest{
				DeviceID: "device-" + string(rune('a'+device)),
				Code:     code.Code,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes, exhausted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case domain.IsDomainError(err, domain.ErrCodeExhausted.Code):
			exhausted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 3 {
		t.Errorf("successes = %d, want exactly 3", successes)
	}
	if exhausted != attempts-3 {
		t.Errorf("exhausted rejections = %d, want %d", exhausted, attempts-3)
	}

	stored, err := store.GetCode(context.Background(), code.Code)
	if err != nil {
		t.Fatal(err)
	}
	if stored.CurrentUses != 3 {
		t.Errorf("CurrentUses = %d, want 3", stored.CurrentUses)
	}
}

func TestVerifyUnknownDevice(t *testing.T) {
	svc := newTestService(newMockStore(), newFakeClock(testEpoch))

	resp, err := svc.Verify(context.Background(), &VerifyRequest{DeviceID: "ghost"})
	if err != nil {
		t.Fatalf("Verify must not error for unknown devices: %v", err)
	}
	if resp.Valid {
		t.Error("unknown device verified valid")
	}
}

func TestVerifyLazyExpiryIsSticky(t *testing.T) {
	store := newMockStore()
	clock := newFakeClock(testEpoch)
	svc := newTestService(store, clock)
	code := seedCode(t, store, domain.KindTrialDay, testEpoch)

	if _, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: code.Code}); err != nil {
		t.Fatal(err)
	}

	// One second past the deadline.
	clock.Advance(24*time.Hour + time.Second)
	resp, err := svc.Verify(context.Background(), &VerifyRequest{DeviceID: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Valid {
		t.Fatal("expired license verified valid")
	}

	// The binding flipped inactive.
	b, err := store.GetBinding(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if b.Active {
		t.Error("lazy expiry did not deactivate the binding")
	}

	// Sticky: stays invalid on subsequent verifications.
	clock.Advance(time.Hour)
	resp, err = svc.Verify(context.Background(), &VerifyRequest{DeviceID: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Valid {
		t.Error("expiry is not sticky")
	}
}

func TestExpiredDeviceCanRebind(t *testing.T) {
	store := newMockStore()
	clock := newFakeClock(testEpoch)
	svc := newTestService(store, clock)
	trial := seedCode(t, store, domain.KindTrialDay, testEpoch)

	if _, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: trial.Code}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(48 * time.Hour)
	if _, err := svc.Verify(context.Background(), &VerifyRequest{DeviceID: "d1"}); err != nil {
		t.Fatal(err)
	}

	// Inactive binding is superseded, not a permanent block.
	month := seedCode(t, store, domain.KindMonth, clock.Now())
	resp, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: month.Code})
	if err != nil {
		t.Fatalf("rebind after expiry: %v", err)
	}
	if resp.Kind != domain.KindMonth {
		t.Errorf("Kind = %s, want MONTH_1M", resp.Kind)
	}

	vr, err := svc.Verify(context.Background(), &VerifyRequest{DeviceID: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if !vr.Valid {
		t.Error("rebound device should verify valid")
	}
}

func TestVerifyTouchUpdatesLastSeen(t *testing.T) {
	store := newMockStore()
	clock := newFakeClock(testEpoch)
	svc := newTestService(store, clock)
	code := seedCode(t, store, domain.KindMonth, testEpoch)

	if _, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: code.Code}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(3 * time.Hour)
	if _, err := svc.Verify(context.Background(), &VerifyRequest{DeviceID: "d1"}); err != nil {
		t.Fatal(err)
	}

	b, err := store.GetBinding(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if b.LastSeenAt != clock.Now().UnixMilli() {
		t.Errorf("LastSeenAt = %d, want %d", b.LastSeenAt, clock.Now().UnixMilli())
	}
}

func TestLifetimeActivationScenario(t *testing.T) {
	store := newMockStore()
	clock := newFakeClock(testEpoch)
	svc := newTestService(store, clock)
	code := seedCode(t, store, domain.KindLifetime, testEpoch)

	resp, err := svc.Activate(context.Background(), &ActivateRequest{DeviceID: "d1", Code: code.Code})
	if err != nil {
		t.Fatal(err)
	}
	if resp.DurationDays != 36500 {
		t.Errorf("DurationDays = %d, want 36500", resp.DurationDays)
	}

	clock.Advance(24 * time.Hour)
	vr, err := svc.Verify(context.Background(), &VerifyRequest{DeviceID: "d1"})
	if err != nil {
		t.Fatal(err)
	}
	if !vr.Valid {
		t.Fatal("lifetime license invalid after one day")
	}
	if vr.DaysRemaining != 36499 {
		t.Errorf("DaysRemaining = %d, want 36499", vr.DaysRemaining)
	}
}
