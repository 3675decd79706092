// Package shutdown provides graceful shutdown handling.
//
// Components register hooks at startup; on SIGINT/SIGTERM the hooks run
// newest-first under a shared timeout, so the HTTP server drains before
// the store closes.
package shutdown
