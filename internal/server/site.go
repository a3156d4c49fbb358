package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmwedding/invitation/internal/wedding"
	"github.com/pmwedding/invitation/internal/wishes"
)

//go:embed templates/index.html
var templateFiles embed.FS

const defaultGuestName = "Guest"

var landingErrorMessages = map[string]string{
	inviteErrorInvalidToken: "This invitation link is not valid. Please check the link you received.",
	inviteErrorUnexpected:   "Something went wrong while opening your invitation. Please try again.",
}

type landingPage struct {
	template *template.Template
}

type landingView struct {
	Couple       string
	Venue        string
	Date         string
	Time         string
	GuestName    string
	HasSession   bool
	ErrorMessage string
	PartySizes   []int
	Schedule     []wedding.ScheduleItem
	Gallery      wedding.Gallery
}

type sessionResponse struct {
	GuestID int64  `json:"guest_id"`
	Name    string `json:"name"`
}

func newLandingPage() (*landingPage, error) {
	parsed, err := template.ParseFS(templateFiles, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &landingPage{template: parsed}, nil
}

func (h *httpHandler) handleLanding(c *gin.Context) {
	view := landingView{
		Couple:       h.wedding.Couple,
		Venue:        h.wedding.Venue,
		GuestName:    defaultGuestName,
		ErrorMessage: landingErrorMessages[c.Query(inviteErrorParameter)],
		PartySizes:   partySizes(),
		Schedule:     h.wedding.Schedule,
		Gallery:      wedding.DefaultGallery(),
	}
	if !h.wedding.Date.IsZero() {
		view.Date = h.wedding.Date.Format("Monday, January 2, 2006")
		view.Time = h.wedding.Date.Format("3:04 PM")
	}
	if guest, failure := h.authenticate(c); failure == nil {
		view.HasSession = true
		view.GuestName = guest.Name
	}

	var rendered bytes.Buffer
	if err := h.landing.template.Execute(&rendered, view); err != nil {
		h.logger.Error("landing page render failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", rendered.Bytes())
}

// handleSession reports the guest owning the session token.
func (h *httpHandler) handleSession(c *gin.Context) {
	guest, failure := h.authenticate(c)
	if failure != nil {
		c.JSON(failure.status, gin.H{"error": failure.code})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{GuestID: guest.ID, Name: guest.Name})
}

func partySizes() []int {
	sizes := make([]int, 0, wishes.MaxPartySize-wishes.MinPartySize+1)
	for size := wishes.MinPartySize; size <= wishes.MaxPartySize; size++ {
		sizes = append(sizes, size)
	}
	return sizes
}
