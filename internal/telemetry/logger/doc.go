// Package logger provides structured logging for KeyMesh.
//
// The logger masks activation code values automatically: a code string
// is a redeemable secret, so full values never reach log output. Use
// L(ctx) in request handlers to pick up the request-scoped logger and
// request ID.
package logger
