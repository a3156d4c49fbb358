package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmwedding/invitation/internal/guests"
)

const (
	landingPath             = "/"
	inviteErrorParameter    = "error"
	inviteErrorInvalidToken = "invalid_token"
	inviteErrorUnexpected   = "unexpected"
)

// handleInvite resolves the invite token, sets the guest cookies and redirects to the
// landing page. Failures redirect with a generic error code and set no cookies.
func (h *httpHandler) handleInvite(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Referrer-Policy", "no-referrer")

	token := strings.TrimSpace(c.Param("token"))
	guest, err := h.directory.Resolve(c.Request.Context(), token)
	if err != nil {
		code := inviteErrorUnexpected
		switch {
		case errors.Is(err, guests.ErrDirectoryUnavailable):
			code = inviteErrorInvalidToken
			h.logger.Error("invite lookup failed", zap.Error(err))
		case guests.IsInvalidToken(err):
			code = inviteErrorInvalidToken
			h.logger.Info("invite token rejected")
		default:
			h.logger.Error("invite resolution failed", zap.Error(err))
		}
		c.Redirect(http.StatusFound, landingErrorURL(code))
		return
	}

	h.sessions.Establish(c.Writer, token, guest.ID, guest.Name)
	h.logger.Info("guest session established", zap.Int64("guest_id", guest.ID))
	c.Redirect(http.StatusFound, landingPath)
}

func landingErrorURL(code string) string {
	query := url.Values{}
	query.Set(inviteErrorParameter, code)
	return landingPath + "?" + query.Encode()
}
