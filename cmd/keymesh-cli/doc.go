// Package main provides the entry point for keymesh-cli.
//
// The CLI tool provides command-line access to a keymesh-server for:
//
//   - Activation code issuance
//   - Device activation and verification
//   - Issuance and binding counters
//   - Fetching sealed backups
//
// Usage:
//
//	keymesh-cli [command] [flags]
//	keymesh-cli code issue --kind WEEK_7D --count 10
//	keymesh-cli --server localhost:8087 stats
package main
