package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/state"
)

// upgrader generalizes _examples/o9nn-echo.go/core/webserver/websocket.go's
// Hub upgrader into the two channel kinds spec.md §9's open question
// resolves into: a push channel (read-only feed of transport.emit output)
// and a chat channel (each inbound frame runs a full tick).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 60 * time.Second
)

// handleWSPush upgrades the connection and streams every message the
// transport driver emits for this thread, without accepting input —
// a dashboard / observer channel.
func (s *Server) handleWSPush(c *gin.Context) {
	threadID := c.Param("thread_id")
	connID := uuid.NewString()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log.Warnw("ws push upgrade failed", "conn_id", connID, "err", err)
		return
	}
	defer conn.Close()
	s.Log.Debugw("ws push connected", "conn_id", connID, "thread_id", threadID)

	feed := s.Outbox.Subscribe(threadID)
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-feed:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWSChat upgrades the connection and runs one full tick per inbound
// text frame, writing back the resulting public state view — the
// synchronous request/response channel spec.md §9 calls the "chat"
// channel, as opposed to the fire-and-forget push channel above.
func (s *Server) handleWSChat(c *gin.Context) {
	threadID := c.Param("thread_id")
	connID := uuid.NewString()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log.Warnw("ws chat upgrade failed", "conn_id", connID, "err", err)
		return
	}
	defer conn.Close()
	s.Log.Debugw("ws chat connected", "conn_id", connID, "thread_id", threadID)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var body struct {
			Text string `json:"text"`
			Lang string `json:"lang"`
		}
		if err := conn.ReadJSON(&body); err != nil {
			return
		}
		event := state.Tree{
			"id": idhash.SHA1OfString(threadID + body.Text + time.Now().String()),
			"type": "message_commit", "text": body.Text, "lang": body.Lang,
			"author": "user", "at_ms": time.Now().UnixMilli(),
		}
		next, _, _ := s.RunTick(threadID, event)
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(publicView(next)); err != nil {
			return
		}
	}
}
