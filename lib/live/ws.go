package live

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades r to a websocket and streams userID's events over it until
// either side closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID uint) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Sugar().Warnw("Error upgrading websocket", "user_id", userID, "err", err)
		return
	}

	id, send := h.Subscribe(userID)
	h.log.Sugar().Debugw("Registered live connection", "user_id", userID, "conn", id)

	go h.writer(ws, send)
	h.reader(ws)

	h.Unsubscribe(userID, id)
	h.log.Sugar().Debugw("Unregistered live connection", "user_id", userID, "conn", id)
}

// reader drains the client side so control frames are processed. Clients are
// not expected to send anything.
func (h *Hub) reader(ws *websocket.Conn) {
	defer ws.Close()

	ws.SetReadLimit(512)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writer(ws *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Sugar().Debugw("Websocket write error", "err", err)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
