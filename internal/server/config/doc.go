// Package config defines the keymesh-server configuration structure,
// defaults, and validation. Values load through infra/confloader with
// priority Env > File > Default.
package config
