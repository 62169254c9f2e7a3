package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"CfdLedger/internal/core"
	"CfdLedger/internal/ingestion"
	"CfdLedger/internal/observability"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamClientBuf  = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type streamClient struct {
	send  chan []byte
	types map[string]struct{} // empty means every command type
}

func (c *streamClient) wants(commandType string) bool {
	if len(c.types) == 0 {
		return true
	}
	_, ok := c.types[commandType]
	return ok
}

// StreamHub pushes committed events to websocket clients. A client that
// cannot keep up loses events rather than stalling the hub.
type StreamHub struct {
	in      <-chan core.CoreOutput
	metrics *observability.Metrics
	log     zerolog.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func NewStreamHub(in <-chan core.CoreOutput, metrics *observability.Metrics, log zerolog.Logger) *StreamHub {
	return &StreamHub{
		in:      in,
		metrics: metrics,
		log:     log,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run broadcasts until in is closed or ctx is done.
func (h *StreamHub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-h.in:
			if !ok {
				return
			}
			h.broadcast(out)
		}
	}
}

func (h *StreamHub) broadcast(out core.CoreOutput) {
	if out.Envelope == nil {
		return
	}
	pe := ingestion.NewPublishedEvent(out)
	msg, err := json.Marshal(pe)
	if err != nil {
		h.log.Error().Err(err).Int64("seq", pe.Sequence).Msg("encode stream event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(pe.CommandType) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			if h.metrics != nil {
				h.metrics.StreamDrops.Inc()
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *StreamHub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
	}
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.StreamClients.Dec()
	}
}

func (h *StreamHub) closeAll() {
	h.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}

// ServeHTTP upgrades the request. ?types=deposit,swap limits the stream
// to those command types.
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("stream upgrade failed")
		return
	}

	c := &streamClient{send: make(chan []byte, streamClientBuf), types: make(map[string]struct{})}
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			c.types[t] = struct{}{}
		}
	}
	h.add(c)

	go h.writePump(conn, c)
	h.readPump(conn, c)
}

// readPump discards client frames and returns once the connection fails.
func (h *StreamHub) readPump(conn *websocket.Conn, c *streamClient) {
	defer h.remove(c)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writePump(conn *websocket.Conn, c *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
