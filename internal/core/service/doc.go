// Package service provides domain services for KeyMesh.
//
// ActivationService owns the activation/redemption state machine: how a
// code transitions from unused to redeemed, how a device transitions
// from unbound to bound to expired, and how concurrent redemptions are
// serialized. IssueService generates activation codes and StatsService
// aggregates counters for the admin surface.
//
// Storage is consumed through repository interfaces defined here;
// implementations live under internal/storage.
package service
