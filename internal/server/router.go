package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmwedding/invitation/internal/changefeed"
	"github.com/pmwedding/invitation/internal/feed"
	"github.com/pmwedding/invitation/internal/guests"
	"github.com/pmwedding/invitation/internal/wedding"
	"github.com/pmwedding/invitation/internal/wishes"
)

const defaultHeartbeatInterval = 25 * time.Second

var (
	errMissingDirectory = errors.New("guest directory dependency required")
	errMissingSessions  = errors.New("session establisher dependency required")
	errMissingWishStore = errors.New("wish store dependency required")
)

// GuestDirectory resolves invite tokens.
type GuestDirectory interface {
	Resolve(ctx context.Context, token string) (guests.Guest, error)
}

// SessionEstablisher writes and clears the guest cookies.
type SessionEstablisher interface {
	Establish(w http.ResponseWriter, token string, guestID int64, name string)
	Clear(w http.ResponseWriter)
}

// WishStore persists and lists wishes.
type WishStore interface {
	Submit(ctx context.Context, request wishes.SubmitRequest) (wishes.Wish, error)
	List(ctx context.Context) ([]wishes.Wish, error)
}

type Dependencies struct {
	Directory         GuestDirectory
	Sessions          SessionEstablisher
	Wishes            WishStore
	Changes           changefeed.Subscriber
	Wedding           wedding.Details
	FeedPollInterval  time.Duration
	HeartbeatInterval time.Duration
	AllowedOrigins    []string
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Directory == nil {
		return nil, errMissingDirectory
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Wishes == nil {
		return nil, errMissingWishStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	pollInterval := deps.FeedPollInterval
	if pollInterval <= 0 {
		pollInterval = feed.DefaultPollInterval
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	landing, err := newLandingPage()
	if err != nil {
		return nil, err
	}

	handler := &httpHandler{
		directory:         deps.Directory,
		sessions:          deps.Sessions,
		wishes:            deps.Wishes,
		changes:           deps.Changes,
		wedding:           deps.Wedding,
		pollInterval:      pollInterval,
		heartbeatInterval: heartbeatInterval,
		clock:             clock,
		logger:            logger,
		landing:           landing,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}
	router.Use(loadSession)

	router.GET("/", handler.handleLanding)
	router.GET("/invite", handler.handleInvite)
	router.GET("/invite/:token", handler.handleInvite)

	api := router.Group("/api")
	api.GET("/session", handler.handleSession)
	api.GET("/wishes", handler.handleListWishes)
	api.POST("/wishes", handler.requireGuest, handler.handleSubmitWish)
	api.GET("/wishes/stream", handler.handleWishStream)
	api.GET("/countdown", handler.handleCountdown)
	api.GET("/details", handler.handleDetails)
	api.GET("/gallery", handler.handleGallery)

	return router, nil
}

type httpHandler struct {
	directory         GuestDirectory
	sessions          SessionEstablisher
	wishes            WishStore
	changes           changefeed.Subscriber
	wedding           wedding.Details
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	clock             func() time.Time
	logger            *zap.Logger
	landing           *landingPage
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (h *httpHandler) handleCountdown(c *gin.Context) {
	c.JSON(http.StatusOK, wedding.Countdown(h.wedding.Date, h.clock()))
}

func (h *httpHandler) handleDetails(c *gin.Context) {
	c.JSON(http.StatusOK, h.wedding)
}

func (h *httpHandler) handleGallery(c *gin.Context) {
	c.JSON(http.StatusOK, wedding.DefaultGallery())
}
