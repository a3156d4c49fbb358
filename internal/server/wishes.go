package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmwedding/invitation/internal/feed"
	"github.com/pmwedding/invitation/internal/wishes"
)

const (
	errorInvalidRequest       = "invalid_request"
	errorInvalidPartySize     = "invalid_party_size"
	errorWishAlreadySubmitted = "wish_already_submitted"
	errorSubmissionInProgress = "submission_in_progress"
	errorSubmitFailed         = "submit_failed"

	messageAlreadySubmitted = "You already sent your wish. Thank you!"
	messageSubmitFailed     = "We could not save your wish. Please try again."
)

type submitWishPayload struct {
	Message        string `json:"message"`
	NumberOfGuests int    `json:"number_of_guests"`
	WillAttend     bool   `json:"will_attend"`
}

type submitWishResponse struct {
	Wish feed.Entry `json:"wish"`
	Feed feed.View  `json:"feed"`
}

// currentView fetches the whole feed once. Store failures yield an empty feed.
func (h *httpHandler) currentView(ctx context.Context, now time.Time) feed.View {
	view := feed.View{Entries: []feed.Entry{}, RefreshedAt: now.UTC()}
	records, err := h.wishes.List(ctx)
	if err != nil {
		h.logger.Error("wish feed fetch failed", zap.Error(err))
		return view
	}
	view.Entries = feed.MapWishes(records, now)
	view.Stats = feed.ComputeStats(view.Entries)
	return view
}

func (h *httpHandler) handleListWishes(c *gin.Context) {
	view := h.currentView(c.Request.Context(), h.clock())
	c.JSON(http.StatusOK, view.Filter(c.Query("filter")))
}

func (h *httpHandler) handleSubmitWish(c *gin.Context) {
	guest, ok := guestFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errorNoSession})
		return
	}

	var payload submitWishPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}

	wish, err := h.wishes.Submit(c.Request.Context(), wishes.SubmitRequest{
		GuestID:        guest.ID,
		Name:           guest.Name,
		Message:        payload.Message,
		NumberOfGuests: payload.NumberOfGuests,
		WillAttend:     payload.WillAttend,
	})
	switch {
	case err == nil:
		// The stored wish leads the returned feed even if the refetch misses it.
		now := h.clock()
		entry := feed.MapWish(wish, now)
		c.JSON(http.StatusCreated, submitWishResponse{
			Wish: entry,
			Feed: h.currentView(c.Request.Context(), now).Prepend(entry),
		})
	case errors.Is(err, wishes.ErrEmptyMessage):
		c.Status(http.StatusNoContent)
	case errors.Is(err, wishes.ErrInvalidPartySize):
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidPartySize})
	case errors.Is(err, wishes.ErrAlreadySubmitted):
		c.JSON(http.StatusConflict, gin.H{"error": errorWishAlreadySubmitted, "message": messageAlreadySubmitted})
	case errors.Is(err, wishes.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": errorSubmissionInProgress})
	case errors.Is(err, wishes.ErrUnknownGuest):
		h.sessions.Clear(c.Writer)
		c.JSON(http.StatusUnauthorized, gin.H{"error": errorSessionInvalid})
	default:
		h.logger.Error("wish submission failed", zap.Int64("guest_id", guest.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorSubmitFailed, "message": messageSubmitFailed})
	}
}
