// Package handler provides HTTP request handlers for KeyMesh.
package handler

import "time"

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses
// Prometheus exposition format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"` // Additional error details
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ActivateRequest is the request body for POST /api/v1/activate.
type ActivateRequest struct {
	DeviceID string `json:"device_id"`
	Code     string `json:"activation_code"`
}

// ActivateResponse is the response body for POST /api/v1/activate.
type ActivateResponse struct {
	LicenseKind  string    `json:"license_kind"`
	DurationDays int       `json:"duration_days"`
	ActivatedAt  time.Time `json:"activated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// VerifyRequest is the request body for POST /api/v1/verify.
type VerifyRequest struct {
	DeviceID string `json:"device_id"`
}

// VerifyResponse is the response body for POST /api/v1/verify.
// DaysRemaining and IsTrial are always present; zero days remaining on
// the last valid day must still reach the caller.
type VerifyResponse struct {
	Valid         bool       `json:"valid"`
	LicenseKind   string     `json:"license_kind,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
	IsTrial       bool       `json:"is_trial"`
}

// IssueCodesRequest is the request body for POST /admin/v1/codes.
type IssueCodesRequest struct {
	LicenseKind string `json:"license_kind"`
	Count       int    `json:"count,omitempty"`
	IssuedBy    string `json:"issued_by,omitempty"`
	MaxUses     int    `json:"max_uses,omitempty"`
}

// IssuedCode represents one generated code in issuance responses.
type IssuedCode struct {
	Code      string    `json:"code"`
	MaxUses   int       `json:"max_uses"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueCodesResponse is the response body for POST /admin/v1/codes.
type IssueCodesResponse struct {
	BatchID      string       `json:"batch_id"`
	LicenseKind  string       `json:"license_kind"`
	DurationDays int          `json:"duration_days"`
	Count        int          `json:"count"`
	Codes        []IssuedCode `json:"codes"`
}

// KindStats represents per-kind code counters in stats responses.
type KindStats struct {
	Issued   int `json:"issued"`
	Redeemed int `json:"redeemed"`
}

// DeviceStats represents device binding counters in stats responses.
type DeviceStats struct {
	Active int `json:"active"`
	Total  int `json:"total"`
}

// StatsResponse is the response body for GET /admin/v1/stats.
type StatsResponse struct {
	Codes   map[string]KindStats `json:"codes"`
	Devices DeviceStats          `json:"devices"`
}
