// Package handler provides HTTP request handlers for KeyMesh.
//
// This package implements the activation API (redeem, verify), the
// admin surface (issuance, stats, backups), and the probe endpoints.
// All JSON responses share the envelope defined in types.go.
package handler
