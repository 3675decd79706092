// Package domain defines the core domain models for KeyMesh.
package domain

// LicenseKind is the category of a license grant. The kind determines
// the grant duration in days.
type LicenseKind string

// The closed set of license kinds. The string values double as the
// activation code prefixes on the wire, so they are part of the
// external contract and must not change.
const (
	KindTrialDay LicenseKind = "TRIAL_1D"
	KindWeek     LicenseKind = "WEEK_7D"
	KindMonth    LicenseKind = "MONTH_1M"
	KindQuarter  LicenseKind = "MONTH_3M"
	KindLifetime LicenseKind = "LIFETIME"
)

// LifetimeDays is the sentinel duration for lifetime licenses.
// A large finite value keeps expiry arithmetic uniform across kinds;
// there is no special "never expires" case anywhere downstream.
const LifetimeDays = 36500

// kindDurations maps each kind to its grant length in days.
var kindDurations = map[LicenseKind]int{
	KindTrialDay: 1,
	KindWeek:     7,
	KindMonth:    30,
	KindQuarter:  90,
	KindLifetime: LifetimeDays,
}

// Kinds returns all license kinds in stable order.
func Kinds() []LicenseKind {
	return []LicenseKind{KindTrialDay, KindWeek, KindMonth, KindQuarter, KindLifetime}
}

// ParseLicenseKind parses a license kind string.
// Returns ErrKindInvalid for anything outside the closed set.
func ParseLicenseKind(s string) (LicenseKind, error) {
	kind := LicenseKind(s)
	if _, ok := kindDurations[kind]; !ok {
		return "", ErrKindInvalid.WithDetails("unknown kind: " + s)
	}
	return kind, nil
}

// Valid reports whether the kind belongs to the closed set.
func (k LicenseKind) Valid() bool {
	_, ok := kindDurations[k]
	return ok
}

// DurationDays returns the grant length in days for the kind.
// Returns 0 for an invalid kind.
func (k LicenseKind) DurationDays() int {
	return kindDurations[k]
}

// IsTrial reports whether the kind is the one-day trial.
func (k LicenseKind) IsTrial() bool {
	return k == KindTrialDay
}

// String implements fmt.Stringer.
func (k LicenseKind) String() string {
	return string(k)
}
