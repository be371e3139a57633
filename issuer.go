package prbook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Hwndy/PR-BOOK/domain"
	serrors "github.com/Hwndy/PR-BOOK/errors"
	"github.com/Hwndy/PR-BOOK/internal/metrics"
)

// Vocabulary that marks an order as a digital product. Matched
// case-insensitively as substrings of the product name.
var digitalProductMarkers = []string{"digital", "e-book"}

const tokenBytes = 32

// Issuer mints reading tokens for completed digital-product orders. Issuing
// twice for the same order yields two independent valid tokens on purpose:
// support re-sends access emails without touching earlier links.
type Issuer struct {
	repo     domain.TokenRepository
	baseURL  string
	tokenTTL time.Duration
	now      func() time.Time
}

// IssueRequest is the confirmed order tuple handed over by the payment
// subsystem.
type IssueRequest struct {
	Email          string `json:"email"`
	OrderReference string `json:"orderReference"`
	ProductName    string `json:"productName"`
}

// IssueResult is returned to the caller that delivers the reading link.
type IssueResult struct {
	Token      string
	ReadingURL string
	ExpiresAt  time.Time
	ExpiresIn  string
}

func NewIssuer(repo domain.TokenRepository, baseURL string, tokenTTL time.Duration) *Issuer {
	return &Issuer{
		repo:     repo,
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// IssueReadingURL validates the order tuple, persists a fresh unbound token
// and returns the reading link. The new record never mutates existing ones.
func (i *Issuer) IssueReadingURL(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	switch {
	case strings.TrimSpace(req.Email) == "":
		return nil, serrors.NewMissingField("email")
	case strings.TrimSpace(req.OrderReference) == "":
		return nil, serrors.NewMissingField("orderReference")
	case strings.TrimSpace(req.ProductName) == "":
		return nil, serrors.NewMissingField("productName")
	}

	if !isDigitalProduct(req.ProductName) {
		log.Warn().
			Str("order_reference", req.OrderReference).
			Str("product_name", req.ProductName).
			Msg("Refusing reading URL for non-digital product")
		return nil, serrors.NewWrongProductType()
	}

	// LastAccess stays zero until the first successful validation: a token
	// nobody has opened yet is not a reading session and must never trip the
	// concurrent-session guard for the one that is.
	now := i.now().UTC()
	record := &domain.ReadingToken{
		Email:          req.Email,
		OrderReference: req.OrderReference,
		ProductName:    req.ProductName,
		CreatedAt:      now,
		ExpiresAt:      now.Add(i.tokenTTL),
	}

	// A 256-bit token colliding is not a realistic event, but the store
	// enforces uniqueness anyway; retry a couple of times before giving up.
	var insertErr error
	for attempt := 0; attempt < 3; attempt++ {
		token, err := newTokenValue()
		if err != nil {
			return nil, fmt.Errorf("generating reading token: %w", err)
		}
		record.Token = token
		record.SessionID = uuid.NewString()

		insertErr = i.repo.Insert(ctx, record)
		if insertErr == nil {
			break
		}
		if !errors.Is(insertErr, serrors.ErrDuplicateToken) {
			return nil, fmt.Errorf("storing reading token: %w", insertErr)
		}
	}
	if insertErr != nil {
		return nil, fmt.Errorf("storing reading token: %w", insertErr)
	}

	metrics.TokensIssuedTotal.Inc()
	log.Info().
		Str("order_reference", req.OrderReference).
		Str("session_id", record.SessionID).
		Time("expires_at", record.ExpiresAt).
		Msg("Reading token issued")

	return &IssueResult{
		Token:      record.Token,
		ReadingURL: fmt.Sprintf("%s/read-book/%s", i.baseURL, record.Token),
		ExpiresAt:  record.ExpiresAt,
		ExpiresIn:  fmt.Sprintf("%d hours", int(i.tokenTTL.Hours())),
	}, nil
}

func isDigitalProduct(productName string) bool {
	name := strings.ToLower(productName)
	for _, marker := range digitalProductMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func newTokenValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
