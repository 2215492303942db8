package v1

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/runlab/orchestrator/internal/domain"
	"github.com/runlab/orchestrator/internal/hub"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchReadTimeout  = 60 * time.Second
	watchPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WatchRun upgrades to a WebSocket and streams applied events for one run.
func (h *Handler) WatchRun(c echo.Context) error {
	runID := c.Param("run_id")

	if _, err := h.svc.GetRun(c.Request().Context(), runID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}

	watchHub := h.svc.Hub()
	if watchHub == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "watch is not enabled"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WARN: failed to upgrade websocket: %v", err)
		return err
	}

	conn := watchHub.NewConnection(ws, runID)
	watchHub.Register(conn)

	go writePump(conn)
	go readPump(watchHub, conn)

	return nil
}

// readPump drains the connection so close frames and pongs are processed.
func readPump(watchHub *hub.Hub, conn *hub.Connection) {
	defer func() {
		watchHub.Unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(watchReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(watchReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: watcher %s: %v", conn.ID, err)
			}
			return
		}
	}
}

// writePump forwards hub messages and keeps the connection alive with pings.
func writePump(conn *hub.Connection) {
	ticker := time.NewTicker(watchPingInterval)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
