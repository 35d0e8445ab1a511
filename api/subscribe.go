package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/chat"
	"github.com/tidewell/agentdeck/log"
)

var subscribeLogger = log.GetLogger("ApiSubscribe")

// subscribePingInterval keeps idle WebSocket connections alive through
// proxies
const subscribePingInterval = 30 * time.Second

// SubscribeSession handles the WebSocket connection for live session
// updates. On connect the client receives a snapshot frame with the full
// transcript, then incremental frames as the turn streams. The socket is
// one-way: turns are started over REST, the socket only mirrors them.
func SubscribeSession(c *gin.Context) {
	id := c.Param("id")

	console, err := chatManager.GetConsole(id)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			RespondNotFound(c, "Session not found")
			return
		}
		subscribeLogger.Error().Err(err).Str("sessionId", id).Msg("failed to load console")
		RespondInternalError(c, "Failed to load session")
		return
	}

	// Get the underlying http.ResponseWriter from Gin's wrapper
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}

	// Keep the request logger off the hijacked connection
	log.MarkHijacked(c)

	conn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin check skipped; auth runs in middleware
	})
	if err != nil {
		subscribeLogger.Error().Err(err).Str("sessionId", id).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Abort Gin context to prevent middleware from writing headers on the
	// hijacked connection
	c.Abort()

	// Gin's request context doesn't cancel when the WebSocket closes, so
	// wrap it and cancel explicitly
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Catch-up snapshot before any incremental frames
	if snapshot, err := console.SnapshotFrame(); err == nil {
		if err := conn.Write(ctx, websocket.MessageText, snapshot); err != nil {
			subscribeLogger.Debug().Err(err).Str("sessionId", id).Msg("failed to send snapshot")
			return
		}
	}

	sub := console.Subscribe()
	defer console.Unsubscribe(sub)

	subscribeLogger.Debug().Str("sessionId", id).Str("subscriberId", sub.ID).Msg("client subscribed")

	// Writer goroutine: drain broadcast frames onto the socket
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-sub.Send:
				if !ok {
					// Console deleted or manager shutting down
					cancel()
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Ping goroutine
	pingTicker := time.NewTicker(subscribePingInterval)
	defer pingTicker.Stop()

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				if err := conn.Ping(ctx); err != nil {
					return
				}
			}
		}
	}()

	// Read loop exists to detect the client going away
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusGoingAway ||
				closeStatus == websocket.StatusNormalClosure ||
				closeStatus == websocket.StatusNoStatusRcvd {
				subscribeLogger.Debug().Str("sessionId", id).Int("closeStatus", int(closeStatus)).Msg("WebSocket closed normally")
			} else {
				subscribeLogger.Debug().Err(err).Str("sessionId", id).Msg("WebSocket read error")
			}
			cancel()
			break
		}
	}

	<-writeDone
	<-pingDone
}
