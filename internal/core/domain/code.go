// Package domain defines the core domain models for KeyMesh.
package domain

import (
	"strings"
	"time"

	codegen "github.com/yndnr/keymesh-go/pkg/code"
)

// Activation code format constants.
//
// A code is <KIND>_<random part>, e.g. "WEEK_7D_3F0A9C2D41EB".
// The random part is CodeRandomBytes bytes from a CSPRNG, hex encoded
// uppercase. Codes must be unguessable; a predictable counter is not
// an acceptable source.
const (
	// CodeRandomBytes is the number of random bytes in a code.
	CodeRandomBytes = 6

	// CodeRandomLength is the hex-encoded length of the random part.
	CodeRandomLength = CodeRandomBytes * 2

	// codeSeparator joins the kind prefix and the random part.
	codeSeparator = "_"
)

// millisPerDay converts between durationDays and Unix-millisecond timestamps.
const millisPerDay = int64(24 * time.Hour / time.Millisecond)

// GenerateCode generates a cryptographically random activation code
// string for the given kind.
func GenerateCode(kind LicenseKind) (string, error) {
	if !kind.Valid() {
		return "", ErrKindInvalid.WithDetails("unknown kind: " + string(kind))
	}

	random, err := codegen.RandomUpperHex(CodeRandomBytes)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}

	return string(kind) + codeSeparator + random, nil
}

// KindFromCode extracts the license kind from a code string by matching
// against the closed prefix set. Kind names themselves contain
// underscores, so this matches whole prefixes rather than splitting.
func KindFromCode(code string) (LicenseKind, bool) {
	for _, kind := range Kinds() {
		if strings.HasPrefix(code, string(kind)+codeSeparator) {
			return kind, true
		}
	}
	return "", false
}

// ValidateCodeFormat checks if a string has valid activation code shape:
// a known kind prefix, the separator, and an uppercase hex random part
// of the expected length.
func ValidateCodeFormat(code string) bool {
	kind, ok := KindFromCode(code)
	if !ok {
		return false
	}

	body := code[len(kind)+len(codeSeparator):]
	if len(body) != CodeRandomLength {
		return false
	}

	for _, c := range body {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// MaskCode masks an activation code for safe logging.
// Example: WEEK_7D_3F0...1EB
func MaskCode(code string) string {
	kind, ok := KindFromCode(code)
	if !ok {
		return "***REDACTED***"
	}
	body := code[len(kind)+len(codeSeparator):]
	if len(body) > 6 {
		return string(kind) + codeSeparator + body[:3] + "..." + body[len(body)-3:]
	}
	return string(kind) + codeSeparator + "***"
}

// ActivationCode represents a quota-bounded license token.
//
// A code is created unused, transitions to partially/fully redeemed only
// via the storage layer's atomic redemption, and is never deleted; the
// persisted rows form the audit trail. Field names and types are the
// contract surface for any store implementation (external tooling reads
// them directly).
type ActivationCode struct {
	// Code is the unique opaque code string, immutable once created.
	Code string `json:"code"`

	// Kind is the license kind this code grants.
	Kind LicenseKind `json:"license_kind"`

	// DurationDays is the grant length in days. Lifetime uses the
	// LifetimeDays sentinel rather than a special value.
	DurationDays int `json:"duration_days"`

	// MaxUses is the redemption quota.
	MaxUses int `json:"max_uses"`

	// CurrentUses is the number of successful redemptions so far.
	// Invariant: 0 <= CurrentUses <= MaxUses, monotonically increasing,
	// mutated only via the storage layer's atomic update.
	CurrentUses int `json:"current_uses"`

	// Redeemed caches CurrentUses >= MaxUses.
	Redeemed bool `json:"is_redeemed"`

	// RedeemedBy is the device that first redeemed the code.
	RedeemedBy string `json:"redeemed_by_device,omitempty"`

	// RedeemedAt is the first redemption timestamp (Unix milliseconds).
	RedeemedAt int64 `json:"redeemed_at,omitempty"`

	// CreatedAt is the issuance timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// ExpiresAt is the end of the code's own validity window (Unix
	// milliseconds), distinct from the license deadline it grants.
	ExpiresAt int64 `json:"expires_at"`

	// IssuedBy identifies the issuer.
	IssuedBy string `json:"issued_by"`
}

// DefaultMaxUses is the default redemption quota for new codes.
const DefaultMaxUses = 1

// NewActivationCode creates a new unused ActivationCode with a generated
// code string. The code's validity window equals the grant duration,
// matching the issuance behavior external tooling expects.
func NewActivationCode(kind LicenseKind, issuedBy string, now time.Time) (*ActivationCode, error) {
	code, err := GenerateCode(kind)
	if err != nil {
		return nil, err
	}

	days := kind.DurationDays()
	nowMs := now.UnixMilli()
	return &ActivationCode{
		Code:         code,
		Kind:         kind,
		DurationDays: days,
		MaxUses:      DefaultMaxUses,
		CreatedAt:    nowMs,
		ExpiresAt:    nowMs + int64(days)*millisPerDay,
		IssuedBy:     issuedBy,
	}, nil
}

// Exhausted reports whether the redemption quota is used up.
func (c *ActivationCode) Exhausted() bool {
	return c.CurrentUses >= c.MaxUses
}

// WindowElapsed reports whether the code's own validity window has
// elapsed at the given time.
func (c *ActivationCode) WindowElapsed(now time.Time) bool {
	return now.UnixMilli() > c.ExpiresAt
}

// RemainingUses returns how many redemptions the code still permits.
func (c *ActivationCode) RemainingUses() int {
	if c.CurrentUses >= c.MaxUses {
		return 0
	}
	return c.MaxUses - c.CurrentUses
}

// Consume records one successful redemption by the given device.
// Callers must only invoke this inside the store's atomic update; the
// quota invariant is not protected here.
func (c *ActivationCode) Consume(deviceID string, now time.Time) {
	c.CurrentUses++
	if c.RedeemedBy == "" {
		c.RedeemedBy = deviceID
		c.RedeemedAt = now.UnixMilli()
	}
	c.Redeemed = c.CurrentUses >= c.MaxUses
}

// Validate validates the code fields against invariants.
func (c *ActivationCode) Validate() error {
	var violations []string

	if !ValidateCodeFormat(c.Code) {
		violations = append(violations, "code has invalid format")
	}
	if !c.Kind.Valid() {
		violations = append(violations, "license_kind is unknown")
	}
	if c.DurationDays <= 0 {
		violations = append(violations, "duration_days must be positive")
	}
	if c.MaxUses <= 0 {
		violations = append(violations, "max_uses must be positive")
	}
	if c.CurrentUses < 0 || c.CurrentUses > c.MaxUses {
		violations = append(violations, "current_uses outside [0, max_uses]")
	}

	if len(violations) > 0 {
		return ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a copy of the activation code.
func (c *ActivationCode) Clone() *ActivationCode {
	clone := *c
	return &clone
}

// CreatedAtTime returns CreatedAt as time.Time.
func (c *ActivationCode) CreatedAtTime() time.Time {
	return time.UnixMilli(c.CreatedAt)
}

// ExpiresAtTime returns ExpiresAt as time.Time.
func (c *ActivationCode) ExpiresAtTime() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}
