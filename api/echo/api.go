package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	prbook "github.com/Hwndy/PR-BOOK"
	serrors "github.com/Hwndy/PR-BOOK/errors"
	"github.com/Hwndy/PR-BOOK/internal/metrics"
)

// EbookAPI exposes the e-book access control endpoints.
type EbookAPI struct {
	issuer    *prbook.Issuer
	validator *prbook.Validator
	tracker   *prbook.SessionTracker
	gate      *prbook.ContentGate
}

func NewEbookAPI(issuer *prbook.Issuer, validator *prbook.Validator, tracker *prbook.SessionTracker, gate *prbook.ContentGate) *EbookAPI {
	return &EbookAPI{
		issuer:    issuer,
		validator: validator,
		tracker:   tracker,
		gate:      gate,
	}
}

// RegisterRoutes registers the e-book routes.
func (a *EbookAPI) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/ebook")
	g.POST("/generate-reading-url", a.GenerateReadingURLHandler)
	g.GET("/validate-access/:token", a.ValidateAccessHandler)
	g.GET("/content/:token", a.ContentHandler)
	g.POST("/heartbeat/:token", a.HeartbeatHandler)
	g.GET("/stats", a.StatsHandler)
}

// requestContext derives the device identity for this request. The
// fingerprint is recomputed on every call, never taken from the client.
func requestContext(c echo.Context) prbook.RequestContext {
	req := c.Request()
	signals := prbook.DeviceSignals{
		UserAgent:      req.UserAgent(),
		AcceptLanguage: req.Header.Get("Accept-Language"),
		AcceptEncoding: req.Header.Get("Accept-Encoding"),
		IP:             c.RealIP(),
		ForwardedFor:   req.Header.Get("X-Forwarded-For"),
	}
	return prbook.RequestContext{
		Fingerprint: prbook.Fingerprint(signals),
		UserAgent:   req.UserAgent(),
		IP:          c.RealIP(),
	}
}

// GenerateReadingURLHandler mints a reading link for a completed
// digital-product order. Called by the payment subsystem after a successful
// charge, or by support to re-send access.
func (a *EbookAPI) GenerateReadingURLHandler(c echo.Context) error {
	var req prbook.IssueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest())
	}

	result, err := a.issuer.IssueReadingURL(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err, "Failed to generate reading URL")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"readingUrl":   result.ReadingURL,
		"expiresIn":    result.ExpiresIn,
		"instructions": "This link is personal and expires in " + result.ExpiresIn + ". Do not share this link as it will stop working if accessed from multiple devices.",
	})
}

// ValidateAccessHandler runs the access decision for the reader page. The
// first successful call binds the token to this device.
func (a *EbookAPI) ValidateAccessHandler(c echo.Context) error {
	grant, err := a.validator.Validate(c.Request().Context(), c.Param("token"), requestContext(c))
	if err != nil {
		return writeError(c, err, "Failed to validate access")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": grant.SessionID,
		"email":     grant.Email,
		"expiresAt": grant.ExpiresAt,
	})
}

// ContentHandler streams the protected PDF after validation. Headers forbid
// caching and cross-origin framing so intermediaries never hold a copy of
// the book.
func (a *EbookAPI) ContentHandler(c echo.Context) error {
	content, _, err := a.gate.Open(c.Request().Context(), c.Param("token"), requestContext(c))
	if err != nil {
		return writeError(c, err, "Failed to serve content")
	}
	defer content.File.Close()

	h := c.Response().Header()
	h.Set("Content-Disposition", `inline; filename="`+content.Name+`"`)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "SAMEORIGIN")

	return c.Stream(http.StatusOK, content.ContentType, content.File)
}

// HeartbeatHandler keeps a reading session live. The full validation runs
// again, so a heartbeat from the wrong device terminates the session instead
// of extending it.
func (a *EbookAPI) HeartbeatHandler(c echo.Context) error {
	_, err := a.validator.Validate(c.Request().Context(), c.Param("token"), requestContext(c))
	if err != nil {
		return writeError(c, err, "Heartbeat failed")
	}

	metrics.HeartbeatsTotal.Inc()
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// StatsHandler reports operational counters. Admin visibility only, not an
// enforcement mechanism.
func (a *EbookAPI) StatsHandler(c echo.Context) error {
	stats, err := a.tracker.Snapshot(c.Request().Context())
	if err != nil {
		return writeError(c, err, "Failed to get stats")
	}
	return c.JSON(http.StatusOK, stats)
}

// writeError maps service errors to responses. AccessError carries its own
// status and wire shape; anything else is infrastructure trouble and gets a
// generic 500 so the client can distinguish "try again later" from "this
// link is invalid".
func writeError(c echo.Context, err error, fallback string) error {
	var accessErr *serrors.AccessError
	if errors.As(err, &accessErr) {
		return c.JSON(accessErr.HTTPStatus(), accessErr)
	}

	log.Error().Err(err).Str("path", c.Path()).Msg(fallback)
	return c.JSON(http.StatusInternalServerError, serrors.NewServerError(fallback))
}
