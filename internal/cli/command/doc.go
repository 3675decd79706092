// Package command provides CLI command definitions for keymesh-cli.
//
// Commands talk to a running keymesh-server over its HTTP API:
// code issuance, device activation and verification, counters, and
// sealed backups.
package command
