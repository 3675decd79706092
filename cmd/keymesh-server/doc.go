// Package main provides the entry point for keymesh-server.
//
// The server is the KeyMesh license activation service:
//
//   - HTTP API for code redemption and license verification
//   - Admin surface for issuance, counters, and sealed backups
//   - Prometheus metrics on /metrics
//
// Usage:
//
//	keymesh-server [flags]
//	keymesh-server --config /path/to/config.yaml
//
// The server loads configuration, opens the activation store, and
// serves until interrupted.
package main
