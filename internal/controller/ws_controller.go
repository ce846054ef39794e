package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/hub"
	"log-viewer-backend/internal/model"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSController bridges WebSocket connections to hub viewers. Each
// connection gets one writer goroutine draining the viewer outbox; the
// handler goroutine reads control messages until the peer goes away.
type WSController struct {
	hub          *hub.Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	readLimit    int64
}

func NewWSController(h *hub.Hub, cfg *config.Config) *WSController {
	return &WSController{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: cfg.Hub.WriteTimeout,
		readLimit:    cfg.Hub.ReadLimit,
	}
}

func RegisterWSRoutes(router *gin.Engine, controller *WSController) {
	router.GET("/ws", controller.Serve)
	router.GET("/", func(ctx *gin.Context) {
		if websocket.IsWebSocketUpgrade(ctx.Request) {
			controller.Serve(ctx)
			return
		}
		ctx.JSON(http.StatusOK, model.NewResponse("log viewer backend, connect a WebSocket to /ws", nil))
	})
}

// Serve godoc
// @Summary      Live log stream
// @Description  Upgrades to a WebSocket. The first message is an init snapshot, followed by record, service-discovered and clear events. Clients may send ping, clear and subscribe.
// @Tags         stream
// @Success      101
// @Router       /ws [get]
func (c *WSController) Serve(ctx *gin.Context) {
	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", ctx.ClientIP()).Msg("WebSocket upgrade failed")
		return
	}

	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	viewer, err := c.hub.Subscribe(connCtx)
	if err != nil {
		log.Warn().Err(err).Msg("Rejecting viewer")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server unavailable"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	log.Info().Str("viewer", viewer.ID()).Str("remote", ctx.ClientIP()).Msg("Viewer attached")

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop(conn, viewer)
	}()
	c.readLoop(connCtx, conn, viewer)

	c.hub.Unsubscribe(viewer)
	<-done
	log.Info().Str("viewer", viewer.ID()).Msg("Viewer detached")
}

// readLoop returns on the first read error, which includes the peer
// closing and the writer closing the connection. Frames larger than
// readLimit are discarded without closing the connection.
func (c *WSController) readLoop(ctx context.Context, conn *websocket.Conn, viewer *hub.Viewer) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		data, err := c.readFrame(conn)
		if errors.Is(err, errFrameTooLarge) {
			log.Trace().Str("viewer", viewer.ID()).Int64("limit", c.readLimit).Msg("Ignoring oversized viewer message")
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("viewer", viewer.ID()).Msg("WebSocket read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.HandleMessage(ctx, viewer, data)
	}
}

var errFrameTooLarge = errors.New("frame exceeds read limit")

// readFrame reads one data frame, keeping at most readLimit bytes. The
// rest of an oversized frame is drained so the next frame starts clean.
func (c *WSController) readFrame(conn *websocket.Conn) ([]byte, error) {
	_, r, err := conn.NextReader()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, c.readLimit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.readLimit {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, errFrameTooLarge
	}
	return data, nil
}

// writeLoop is the only writer on conn. It exits when the outbox is
// closed by the hub or a write fails, and closes the connection either way.
func (c *WSController) writeLoop(conn *websocket.Conn, viewer *hub.Viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-viewer.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("viewer", viewer.ID()).Msg("WebSocket write failed")
				c.hub.Unsubscribe(viewer)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unsubscribe(viewer)
				return
			}
		}
	}
}
