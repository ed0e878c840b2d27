package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cryptopulse/internal/metrics"
)

const writeTimeout = 5 * time.Second

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
	sent int64 // sequence of the last message written, -1 before the first
}

// deliver writes v unless a message with the same or a later sequence has
// already been written to this client.
func (c *client) deliver(seq int64, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.sent {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return err
	}
	c.sent = seq
	return nil
}

// Hub fans state views out to every connected websocket client. Publish never
// blocks on the network: a single goroutine writes the latest published
// message to the clients, and a client never receives an older message after
// a newer one.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
	latest  any
	seq     int64

	wake chan struct{}
	done chan struct{}
	stop sync.Once

	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewHub(log zerolog.Logger, m *metrics.Metrics) *Hub {
	h := &Hub{
		clients: make(map[*websocket.Conn]*client),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     log.With().Str("component", "realtime").Logger(),
		metrics: m,
	}
	go h.run()
	return h
}

// Close stops the broadcast goroutine. Connected clients stay open.
func (h *Hub) Close() {
	h.stop.Do(func() { close(h.done) })
}

// Publish records v as the latest message and schedules its broadcast.
func (h *Hub) Publish(v any) {
	h.mu.Lock()
	h.seq++
	h.latest = v
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case <-h.wake:
			h.broadcastLatest()
		}
	}
}

func (h *Hub) broadcastLatest() {
	h.mu.RLock()
	seq, v := h.seq, h.latest
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.deliver(seq, v); err != nil {
			h.log.Debug().Err(err).Str("client", c.id).Msg("write failed, dropping client")
			h.RemoveClient(c.conn)
		}
	}
}

// AddClient registers conn and sends it the latest published message. When
// nothing has been published yet, initial supplies the first message. It
// returns the id used in logs.
func (h *Hub) AddClient(conn *websocket.Conn, initial func() any) (string, error) {
	c := &client{id: uuid.NewString(), conn: conn, sent: -1}

	h.mu.Lock()
	h.clients[conn] = c
	n := len(h.clients)
	seq, v := h.seq, h.latest
	h.mu.Unlock()

	h.metrics.SetClients(n)
	h.log.Debug().Str("client", c.id).Int("clients", n).Msg("client connected")

	if v == nil && initial != nil {
		v = initial()
	}
	if v == nil {
		return c.id, nil
	}
	if err := c.deliver(seq, v); err != nil {
		h.RemoveClient(conn)
		return c.id, err
	}
	return c.id, nil
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	_ = conn.Close()

	if ok {
		h.metrics.SetClients(n)
		h.log.Debug().Str("client", c.id).Int("clients", n).Msg("client disconnected")
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
