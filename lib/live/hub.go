package live

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Channel delivers an event to a user's open connections, reporting whether
// any connection took it.
type Channel interface {
	SendIfConnected(userID uint, evt Event) bool
}

// Broadcaster wraps a Channel so callers never have to care whether one is
// wired in or whether the user is online.
type Broadcaster struct {
	ch Channel
}

func NewBroadcaster(ch Channel) *Broadcaster {
	return &Broadcaster{ch}
}

func (b *Broadcaster) Send(userID uint, evt Event) bool {
	if b == nil || b.ch == nil {
		return false
	}
	return b.ch.SendIfConnected(userID, evt)
}

const queueSize = 64

type connection struct {
	id   string
	send chan []byte
}

// Hub tracks the open connections of every online user.
type Hub struct {
	log *zap.Logger

	mu    sync.RWMutex
	conns map[uint]map[string]*connection
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log, conns: make(map[uint]map[string]*connection)}
}

// Subscribe registers a new connection for userID and returns its handle and
// the queue of encoded events it should write out.
func (h *Hub) Subscribe(userID uint) (string, <-chan []byte) {
	c := &connection{id: uuid.NewString(), send: make(chan []byte, queueSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[string]*connection)
	}
	h.conns[userID][c.id] = c
	return c.id, c.send
}

func (h *Hub) Unsubscribe(userID uint, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userConns := h.conns[userID]
	c, ok := userConns[id]
	if !ok {
		return
	}
	delete(userConns, id)
	close(c.send)
	if len(userConns) == 0 {
		delete(h.conns, userID)
	}
}

func (h *Hub) Connected(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// SendIfConnected never blocks: a connection whose queue is full misses the
// event.
func (h *Hub) SendIfConnected(userID uint, evt Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userConns := h.conns[userID]
	if len(userConns) == 0 {
		return false
	}

	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.Sugar().Errorw("Failed to encode live event", "user_id", userID, "type", evt.Type, "err", err)
		return false
	}

	delivered := false
	for _, c := range userConns {
		select {
		case c.send <- msg:
			delivered = true
		default:
			h.log.Sugar().Warnw("Live queue full, dropping event", "user_id", userID, "conn", c.id, "type", evt.Type)
		}
	}
	return delivered
}
