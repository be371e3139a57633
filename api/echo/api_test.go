package echo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	prbook "github.com/Hwndy/PR-BOOK"
	"github.com/Hwndy/PR-BOOK/cache"
)

const bookBody = "%PDF-1.4 test content"

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	repo := cache.NewMemoryTokenRepository()
	t.Cleanup(repo.Close)

	bookPath := filepath.Join(t.TempDir(), "E-book.pdf")
	require.NoError(t, os.WriteFile(bookPath, []byte(bookBody), 0o600))

	tracker := prbook.NewSessionTracker(repo, nil, 2*time.Hour)
	issuer := prbook.NewIssuer(repo, "http://localhost:5000", 24*time.Hour)
	validator := prbook.NewValidator(repo, tracker, 2*time.Hour)
	gate := prbook.NewContentGate(validator, bookPath, "The-Science-of-Public-Relations.pdf")

	e := echo.New()
	NewEbookAPI(issuer, validator, tracker, gate).RegisterRoutes(e)
	return e
}

// doRequest performs a request with the headers that identify one device.
func doRequest(e *echo.Echo, method, target, body, userAgent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func issueViaAPI(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := doRequest(e, http.MethodPost, "/api/ebook/generate-reading-url",
		`{"email":"a@x.com","orderReference":"R1","productName":"Book (E-Book)"}`, "issuer")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success    bool   `json:"success"`
		ReadingURL string `json:"readingUrl"`
		ExpiresIn  string `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "24 hours", resp.ExpiresIn)

	parts := strings.Split(resp.ReadingURL, "/read-book/")
	require.Len(t, parts, 2)
	return parts[1]
}

func TestGenerateReadingURL(t *testing.T) {
	e := newTestServer(t)
	token := issueViaAPI(t, e)
	assert.Len(t, token, 64)
}

func TestGenerateReadingURLRejectsNonDigital(t *testing.T) {
	e := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/ebook/generate-reading-url",
		`{"email":"a@x.com","orderReference":"R1","productName":"Hardcover Edition"}`, "issuer")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "WRONG_PRODUCT_TYPE", resp["code"])
	assert.Equal(t, "This order is not for a digital product", resp["error"])
}

func TestGenerateReadingURLRejectsMissingFields(t *testing.T) {
	e := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/ebook/generate-reading-url",
		`{"productName":"Digital Edition"}`, "issuer")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MISSING_FIELD", resp["code"])
}

func TestGenerateReadingURLRejectsMalformedBody(t *testing.T) {
	e := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/ebook/generate-reading-url",
		`{"email":`, "issuer")

	// A body that does not parse is not a missing field; the client gets a
	// distinct code.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp["code"])
	assert.Equal(t, "Invalid request body", resp["error"])
}

func TestValidateAccessBindsFirstDevice(t *testing.T) {
	e := newTestServer(t)
	token := issueViaAPI(t, e)

	rec := doRequest(e, http.MethodGet, "/api/ebook/validate-access/"+token, "", "device-one")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success   bool   `json:"success"`
		SessionID string `json:"sessionId"`
		Email     string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "a@x.com", resp.Email)

	// Same device keeps working.
	rec = doRequest(e, http.MethodGet, "/api/ebook/validate-access/"+token, "", "device-one")
	assert.Equal(t, http.StatusOK, rec.Code)

	// A different browser is turned away with the sharing code.
	rec = doRequest(e, http.MethodGet, "/api/ebook/validate-access/"+token, "", "device-two")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var denial map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &denial))
	assert.Equal(t, "SHARING_DETECTED", denial["code"])
	assert.Equal(t, "Device mismatch - link sharing detected", denial["error"])
}

func TestValidateAccessUnknownToken(t *testing.T) {
	e := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/api/ebook/validate-access/deadbeef", "", "device-one")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var denial map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &denial))
	assert.Equal(t, "INVALID_TOKEN", denial["code"])
}

func TestContentStreamAndHeaders(t *testing.T) {
	e := newTestServer(t)
	token := issueViaAPI(t, e)

	rec := doRequest(e, http.MethodGet, "/api/ebook/content/"+token, "", "device-one")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, bookBody, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/pdf")
	assert.Equal(t, `inline; filename="The-Science-of-Public-Relations.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}

func TestContentDeniedForSecondDevice(t *testing.T) {
	e := newTestServer(t)
	token := issueViaAPI(t, e)

	rec := doRequest(e, http.MethodGet, "/api/ebook/content/"+token, "", "device-one")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/ebook/content/"+token, "", "device-two")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "%PDF", "no file bytes on denial")
}

func TestHeartbeat(t *testing.T) {
	e := newTestServer(t)
	token := issueViaAPI(t, e)

	rec := doRequest(e, http.MethodGet, "/api/ebook/validate-access/"+token, "", "device-one")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/ebook/heartbeat/"+token, "", "device-one")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	// A heartbeat from another device is a full denial, not a soft failure.
	rec = doRequest(e, http.MethodPost, "/api/ebook/heartbeat/"+token, "", "device-two")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStats(t *testing.T) {
	e := newTestServer(t)
	token := issueViaAPI(t, e)

	rec := doRequest(e, http.MethodGet, "/api/ebook/validate-access/"+token, "", "device-one")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/ebook/stats", "", "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		ActiveSessions int64 `json:"activeSessions"`
		TotalTokens    int64 `json:"totalTokens"`
		ValidTokens    int64 `json:"validTokens"`
		ExpiredTokens  int64 `json:"expiredTokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalTokens)
	assert.Equal(t, int64(1), stats.ValidTokens)
	assert.Zero(t, stats.ExpiredTokens)
	assert.Equal(t, int64(1), stats.ActiveSessions)
}
