package prbook

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Hwndy/PR-BOOK/errors"
)

func TestIssueReadingURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.issuer.IssueReadingURL(ctx, IssueRequest{
		Email:          "a@x.com",
		OrderReference: "R1",
		ProductName:    "Book (E-Book)",
	})
	require.NoError(t, err)

	assert.Len(t, result.Token, 64)
	assert.Equal(t, "http://localhost:5000/read-book/"+result.Token, result.ReadingURL)
	assert.Equal(t, "24 hours", result.ExpiresIn)
	assert.Equal(t, env.clock.Now().Add(testTokenTTL), result.ExpiresAt)

	record, err := env.repo.Find(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", record.Email)
	assert.Equal(t, "R1", record.OrderReference)
	assert.False(t, record.Bound())
	assert.NotEmpty(t, record.SessionID)
}

func TestIssueReadingURLMissingFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  IssueRequest
	}{
		{"no email", IssueRequest{OrderReference: "R1", ProductName: "Digital Edition"}},
		{"no order reference", IssueRequest{Email: "a@x.com", ProductName: "Digital Edition"}},
		{"no product name", IssueRequest{Email: "a@x.com", OrderReference: "R1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.issuer.IssueReadingURL(ctx, tc.req)
			var accessErr *serrors.AccessError
			require.ErrorAs(t, err, &accessErr)
			assert.Equal(t, serrors.CodeMissingField, accessErr.Code)
		})
	}

	total, err := env.repo.CountTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestIssueReadingURLNonDigitalProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.issuer.IssueReadingURL(ctx, IssueRequest{
		Email:          "a@x.com",
		OrderReference: "R1",
		ProductName:    "Hardcover Edition",
	})

	var accessErr *serrors.AccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, serrors.CodeWrongProductType, accessErr.Code)

	total, err := env.repo.CountTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, total, "no token may be created for a non-digital order")
}

func TestIssueReadingURLDigitalVocabulary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"Digital Bundle", "The Book (E-Book)", "E-BOOK deluxe", "digital download"} {
		_, err := env.issuer.IssueReadingURL(ctx, IssueRequest{
			Email:          "a@x.com",
			OrderReference: "R-" + strings.ToLower(name),
			ProductName:    name,
		})
		assert.NoError(t, err, name)
	}
}

func TestIssueTwiceForSameOrderMintsIndependentTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := IssueRequest{Email: "a@x.com", OrderReference: "R1", ProductName: "Digital Edition"}

	first, err := env.issuer.IssueReadingURL(ctx, req)
	require.NoError(t, err)
	second, err := env.issuer.IssueReadingURL(ctx, req)
	require.NoError(t, err)

	// Re-sending access mints a fresh token and leaves the old one valid.
	assert.NotEqual(t, first.Token, second.Token)
	_, err = env.repo.Find(ctx, first.Token)
	assert.NoError(t, err)
	_, err = env.repo.Find(ctx, second.Token)
	assert.NoError(t, err)
}
