// Package httpserver provides the HTTP server for KeyMesh.
//
// The router mounts three surfaces with separate middleware chains:
// the device-facing activation API under /api/v1, the admin surface
// under /admin/v1 (network ACL, loopback always allowed), and the
// probe endpoints /health, /ready, and /metrics.
package httpserver
