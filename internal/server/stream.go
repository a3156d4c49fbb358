package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmwedding/invitation/internal/feed"
)

const (
	streamEventReady     = "ready"
	streamEventWishes    = "wishes"
	streamEventHeartbeat = "heartbeat"
)

// handleWishStream mounts one feed synchronizer for the lifetime of the connection and
// forwards every published view as a server-sent event.
func (h *httpHandler) handleWishStream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	synchronizer, err := feed.NewSynchronizer(feed.SynchronizerConfig{
		Source:       h.wishes,
		Changes:      h.changes,
		PollInterval: h.pollInterval,
		Clock:        h.clock,
		Logger:       h.logger,
	})
	if err != nil {
		h.logger.Error("wish stream setup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stream_unavailable"})
		return
	}

	ctx := c.Request.Context()
	if err := synchronizer.Start(ctx); err != nil {
		h.logger.Error("wish stream start failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stream_unavailable"})
		return
	}
	defer synchronizer.Stop()

	filter := feed.NormalizeFilter(c.Query("filter"))

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	sseWrite(c.Writer, streamEventReady, "ready")
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	views := synchronizer.Views()
	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}
			sseWrite(c.Writer, streamEventWishes, view.Filter(filter))
			flusher.Flush()
		case <-heartbeat.C:
			sseWrite(c.Writer, streamEventHeartbeat, h.clock().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
