// Package service provides domain services for KeyMesh.
package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/keymesh-go/internal/core/domain"
)

// Issuance limits.
const (
	// DefaultIssueCount is used when the request omits a count.
	DefaultIssueCount = 1

	// MaxIssueCount caps a single issuance batch.
	MaxIssueCount = 500

	// BatchIDPrefix is the prefix for issuance batch IDs.
	BatchIDPrefix = "kmbt-"

	// maxCollisionRetries bounds regeneration when a generated code
	// string collides with an existing one.
	maxCollisionRetries = 3
)

// IssueService generates activation codes. Not a concurrency-sensitive
// path, but code strings are drawn from a secure random source.
type IssueService struct {
	codes  CodeRepository
	clock  domain.Clock
	logger *slog.Logger
}

// NewIssueService creates a new IssueService.
func NewIssueService(codes CodeRepository, clock domain.Clock, logger *slog.Logger) *IssueService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IssueService{
		codes:  codes,
		clock:  clock,
		logger: logger,
	}
}

// IssueRequest contains parameters for code issuance.
type IssueRequest struct {
	Kind     string // Required, one of the closed kind set
	Count    int    // Optional, defaults to 1, capped at MaxIssueCount
	IssuedBy string // Optional issuer tag for the audit trail
	MaxUses  int    // Optional redemption quota, defaults to 1
}

// IssueResponse contains the generated batch.
type IssueResponse struct {
	BatchID      string
	Kind         domain.LicenseKind
	DurationDays int
	Codes        []*domain.ActivationCode
}

// Issue generates a batch of activation codes for the requested kind.
func (s *IssueService) Issue(ctx context.Context, req *IssueRequest) (*IssueResponse, error) {
	// 1. Validate the kind against the closed set.
	kind, err := domain.ParseLicenseKind(req.Kind)
	if err != nil {
		return nil, err
	}

	// 2. Normalize count and quota.
	count := req.Count
	if count <= 0 {
		count = DefaultIssueCount
	}
	if count > MaxIssueCount {
		return nil, domain.ErrInvalidArgument.WithDetails(
			fmt.Sprintf("count %d exceeds maximum %d", count, MaxIssueCount))
	}

	maxUses := req.MaxUses
	if maxUses < 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("max_uses must be positive")
	}

	issuedBy := req.IssuedBy
	if issuedBy == "" {
		issuedBy = "admin"
	}

	batchID, err := newBatchID(s.clock.Now())
	if err != nil {
		return nil, err
	}

	// 3. Generate and persist, regenerating on the rare collision.
	now := s.clock.Now()
	codes := make([]*domain.ActivationCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := s.insertFresh(ctx, kind, issuedBy, maxUses, now)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	s.logger.Info("codes issued",
		"batch_id", batchID,
		"license_kind", kind,
		"count", len(codes),
		"issued_by", issuedBy)

	return &IssueResponse{
		BatchID:      batchID,
		Kind:         kind,
		DurationDays: kind.DurationDays(),
		Codes:        codes,
	}, nil
}

// insertFresh creates one code and stores it, retrying on collision.
func (s *IssueService) insertFresh(ctx context.Context, kind domain.LicenseKind, issuedBy string, maxUses int, now time.Time) (*domain.ActivationCode, error) {
	for attempt := 0; attempt <= maxCollisionRetries; attempt++ {
		code, err := domain.NewActivationCode(kind, issuedBy, now)
		if err != nil {
			return nil, err
		}
		if maxUses > 0 {
			code.MaxUses = maxUses
		}

		err = s.codes.InsertCode(ctx, code)
		if err == nil {
			return code, nil
		}
		if !domain.IsDomainError(err, domain.ErrCodeConflict.Code) {
			return nil, domain.ErrStorageError.WithCause(err)
		}
	}
	return nil, domain.ErrInternalServer.WithDetails("code generation kept colliding")
}

// newBatchID generates an issuance batch ID.
// Format: kmbt-{ulid_lowercase}.
func newBatchID(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", domain.ErrInternalServer.WithCause(err)
	}
	return BatchIDPrefix + strings.ToLower(id.String()), nil
}
