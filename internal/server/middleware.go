package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmwedding/invitation/internal/guests"
	"github.com/pmwedding/invitation/internal/session"
)

const (
	requestIDHeader        = "X-Request-ID"
	sessionContextKey      = "wedding_session"
	sessionErrorKey        = "wedding_session_error"
	guestContextKey        = "wedding_guest"
	maxRequestIDLength     = 128
	errorSessionInvalid    = "session_invalid"
	errorNoSession         = "no_session"
	errorGuestLookupFailed = "guest_lookup_failed"
)

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		started := time.Now()
		c.Next()

		// The route template keeps invite tokens out of the log.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(started)))
	}
}

// loadSession parses the guest cookies once per request.
func loadSession(c *gin.Context) {
	current, err := session.FromRequest(c.Request)
	if err != nil {
		c.Set(sessionErrorKey, err)
	} else {
		c.Set(sessionContextKey, current)
	}
	c.Next()
}

func sessionFromContext(c *gin.Context) (session.Session, error) {
	if value, ok := c.Get(sessionContextKey); ok {
		if current, ok := value.(session.Session); ok {
			return current, nil
		}
	}
	if value, ok := c.Get(sessionErrorKey); ok {
		if err, ok := value.(error); ok {
			return session.Session{}, err
		}
	}
	return session.Session{}, session.ErrMissingSession
}

type sessionFailure struct {
	status int
	code   string
}

// authenticate resolves the HttpOnly token cookie to its guest; the script-readable cookies
// are never trusted for identity. Malformed or stale cookies are cleared.
func (h *httpHandler) authenticate(c *gin.Context) (guests.Guest, *sessionFailure) {
	current, err := sessionFromContext(c)
	if err != nil {
		if errors.Is(err, session.ErrMalformedSession) {
			h.sessions.Clear(c.Writer)
			return guests.Guest{}, &sessionFailure{status: http.StatusUnauthorized, code: errorSessionInvalid}
		}
		return guests.Guest{}, &sessionFailure{status: http.StatusUnauthorized, code: errorNoSession}
	}

	guest, err := h.directory.Resolve(c.Request.Context(), current.Token)
	switch {
	case err == nil:
		return guest, nil
	case errors.Is(err, guests.ErrGuestNotFound), errors.Is(err, guests.ErrEmptyToken):
		h.sessions.Clear(c.Writer)
		return guests.Guest{}, &sessionFailure{status: http.StatusUnauthorized, code: errorSessionInvalid}
	default:
		h.logger.Error("session guest lookup failed", zap.Error(err))
		return guests.Guest{}, &sessionFailure{status: http.StatusServiceUnavailable, code: errorGuestLookupFailed}
	}
}

func (h *httpHandler) requireGuest(c *gin.Context) {
	guest, failure := h.authenticate(c)
	if failure != nil {
		c.AbortWithStatusJSON(failure.status, gin.H{"error": failure.code})
		return
	}
	c.Set(guestContextKey, guest)
	c.Next()
}

func guestFromContext(c *gin.Context) (guests.Guest, bool) {
	value, ok := c.Get(guestContextKey)
	if !ok {
		return guests.Guest{}, false
	}
	guest, ok := value.(guests.Guest)
	return guest, ok
}
