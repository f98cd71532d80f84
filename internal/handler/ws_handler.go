package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/medsim/clerksim-backend/internal/middleware"
	"github.com/medsim/clerksim-backend/internal/service"
	ws "github.com/medsim/clerksim-backend/internal/websocket"
)

// sessionTickInterval is how often the countdown snapshot is pushed.
const sessionTickInterval = 15 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session countdowns over WebSocket.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/stream?token=...
// Pushes a countdown snapshot of the caller's active sessions every tick
// so the client can render remaining time without polling.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("user_id", claims.UserID.String()).Logger()
	wsLog.Info().Msg("Session stream connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reader goroutine: pings and snapshot requests. Exiting it tears the
	// stream down.
	requests := make(chan ws.RequestPayload)
	go func() {
		defer close(requests)
		for {
			var msg ws.RequestPayload
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			select {
			case requests <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := h.pushSnapshot(ctx, conn, claims); err != nil {
		return
	}

	ticker := time.NewTicker(sessionTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.pushSnapshot(ctx, conn, claims); err != nil {
				return
			}
		case msg, ok := <-requests:
			if !ok {
				wsLog.Debug().Msg("Connection closed")
				return
			}
			switch msg.Action {
			case ws.ActionPing:
				ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			case ws.ActionSnapshot:
				if err := h.pushSnapshot(ctx, conn, claims); err != nil {
					return
				}
			default:
				ws.WriteError(conn, "unknown action: "+string(msg.Action))
			}
		}
	}
}

func (h *WSHandler) pushSnapshot(ctx context.Context, conn *websocket.Conn, claims *service.Claims) error {
	sessions, err := h.sessionService.ListActiveSessions(ctx, claims.UserID)
	if err != nil {
		ws.WriteError(conn, "session lookup failed")
		return err
	}

	now := time.Now()
	ticks := make([]ws.SessionTick, 0, len(sessions))
	for _, s := range sessions {
		remaining := int64(s.ExpiresAt.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		ticks = append(ticks, ws.SessionTick{
			SessionID:        s.SessionID,
			CaseID:           s.CaseID.String(),
			ExpiresAt:        s.ExpiresAt,
			RemainingSeconds: remaining,
		})
	}

	return ws.WriteTyped(conn, ws.SessionsResponse{Event: ws.EventSessions, Sessions: ticks})
}
