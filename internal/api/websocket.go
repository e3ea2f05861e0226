package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chefassist/internal/apierr"
	"chefassist/internal/channel"
	"chefassist/internal/logger"
	"chefassist/internal/stream"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 64 * 1024
	wsQueueSize  = 8
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is not checked: the token, not the cookie, authenticates.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsItem is one queued inbound message: a request to run, or the error that
// rejected it.
type wsItem struct {
	req    messageRequest
	reject error
}

// wsConnection serves one websocket. Inbound messages are queued and handled
// one at a time by the worker, which is the only writer of session frames, so
// an error frame never lands inside another session's stream.
type wsConnection struct {
	conn     *websocket.Conn
	send     chan []byte
	requests chan wsItem
	cancel   context.CancelFunc
	server   *Server
	chefID   string
	channel  channel.Channel
	log      *logger.Logger
}

// handleWebSocket keeps the handler goroutine in the read pump so the request
// context stays alive, and cancels it when the client goes away.
func (s *Server) handleWebSocket(c *gin.Context) {
	chefID, ch := caller(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	ws := &wsConnection{
		conn:     conn,
		send:     make(chan []byte, s.deps.StreamBuffer),
		requests: make(chan wsItem, wsQueueSize),
		cancel:   cancel,
		server:   s,
		chefID:   chefID,
		channel:  ch,
		log:      s.log.With("chef_id", chefID, "channel", ch.String()),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ws.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		ws.work(ctx)
	}()

	ws.readPump(ctx)
	cancel()
	wg.Wait()
	conn.Close()
}

// readPump pumps messages from the WebSocket connection to the work queue
func (ws *wsConnection) readPump(ctx context.Context) {
	defer close(ws.requests)

	ws.conn.SetReadLimit(wsReadLimit)
	ws.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Warn("websocket read failed", "error", err)
			}
			return
		}

		var item wsItem
		if err := json.Unmarshal(message, &item.req); err != nil {
			item.reject = apierr.BadRequest("invalid_request", "message must be JSON")
		} else if err := item.req.validate(); err != nil {
			item.reject = err
		}

		// a full queue stalls reading until the worker catches up
		select {
		case ws.requests <- item:
		case <-ctx.Done():
			return
		}
	}
}

// work runs queued sessions and forwards their frames.
func (ws *wsConnection) work(ctx context.Context) {
	for {
		select {
		case item, ok := <-ws.requests:
			if !ok {
				return
			}
			if item.reject != nil {
				ws.reject(ctx, item.reject)
				continue
			}
			out := stream.NewEmitter(ws.server.deps.StreamBuffer)
			done := make(chan struct{})
			go func() {
				defer close(done)
				ws.server.deps.Assistant.Handle(ctx, item.req.session(ws.chefID, ws.channel), out)
			}()
			for f := range out.Frames() {
				data, err := json.Marshal(f)
				if err != nil {
					continue
				}
				ws.enqueue(ctx, data)
			}
			<-done
		case <-ctx.Done():
			return
		}
	}
}

// writePump pumps messages from the server to the WebSocket connection
func (ws *wsConnection) writePump(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		// unblocks the read pump and the worker if the write side failed first
		ws.cancel()
		ws.conn.Close()
	}()

	for {
		select {
		case message := <-ws.send:
			ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			ws.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (ws *wsConnection) enqueue(ctx context.Context, data []byte) {
	select {
	case ws.send <- data:
	case <-ctx.Done():
	}
}

// reject answers a bad inbound message with a terminal error frame.
func (ws *wsConnection) reject(ctx context.Context, err error) {
	msg := "invalid request"
	if e, ok := apierr.As(err); ok {
		msg = e.Error()
	}
	data, _ := json.Marshal(stream.Frame{Type: stream.FrameError, Message: msg})
	ws.enqueue(ctx, data)
}
