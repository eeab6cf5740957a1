package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mahjong-ledger/internal/service/match"
	appErr "mahjong-ledger/pkg/errors"
	"mahjong-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Viewer is what the websocket needs from the match service.
type Viewer interface {
	View(ctx context.Context, gameID string) (*match.MatchView, error)
	Subscribe(ctx context.Context, gameID string) (<-chan []byte, func())
}

type Handler struct {
	matches Viewer
}

func NewHandler(matches Viewer) *Handler {
	return &Handler{matches: matches}
}

// OutgoingMessage is the frame pushed to viewers.
type OutgoingMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers are read-only
	},
}

// HandleMatchWS streams a match to a read-only viewer: the current view on
// connect, then every published update.
func (h *Handler) HandleMatchWS(c *gin.Context) {
	gameID := c.Param("gameId")

	view, err := h.matches.View(c.Request.Context(), gameID)
	if err != nil {
		if errors.Is(err, appErr.ErrMatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load match"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Match(gameID).Info("viewer connected", zap.String("remote", c.ClientIP()))

	ctx, cancel := context.WithCancel(context.Background())
	updates, unsubscribe := h.matches.Subscribe(ctx, gameID)
	client := newClient(conn, gameID, updates, func() {
		unsubscribe()
		cancel()
	})
	client.run(OutgoingMessage{Type: "view", Data: view})
}

type client struct {
	conn      *websocket.Conn
	gameID    string
	updates   <-chan []byte
	release   func()
	done      chan struct{}
	pingEvery time.Duration
}

func newClient(conn *websocket.Conn, gameID string, updates <-chan []byte, release func()) *client {
	conn.SetReadLimit(1 << 12)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	return &client{
		conn:      conn,
		gameID:    gameID,
		updates:   updates,
		release:   release,
		done:      make(chan struct{}),
		pingEvery: 25 * time.Second,
	}
}

func (c *client) run(first OutgoingMessage) {
	go c.writePump(first)
	c.readPump()
}

// readPump only drains control frames; viewers cannot send commands.
func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.release()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.String("gameID", c.gameID))
			return
		}
	}
}

func (c *client) writePump(first OutgoingMessage) {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if err := c.conn.WriteJSON(first); err != nil {
		logger.Log.Info("WS write error", zap.Error(err), zap.String("gameID", c.gameID))
		return
	}

	updates := c.updates
	for {
		select {
		case payload, ok := <-updates:
			if !ok {
				// keep pinging; the viewer simply stops receiving updates
				updates = nil
				continue
			}
			msg := OutgoingMessage{Type: "view", Data: json.RawMessage(payload)}
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Log.Info("WS write error", zap.Error(err), zap.String("gameID", c.gameID))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
