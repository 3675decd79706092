// Package connection provides server communication for keymesh-cli.
//
// The HTTP client speaks the server's JSON envelope; ParseResponse
// unwraps it and converts error envelopes into Go errors.
package connection
