// Package domain defines the core domain models for KeyMesh.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. The two entities are
// ActivationCode (a quota-bounded license token) and DeviceBinding
// (the association of a device with a redeemed license).
package domain
