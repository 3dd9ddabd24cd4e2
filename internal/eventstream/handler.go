package eventstream

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// Handler upgrades the connection and pumps every broadcast to it until
// the client disconnects. The return type is an unnamed function literal
// so it assigns directly into either net/http's or httptreemux's
// distinct named handler types without a conversion at the call site.
func (s *Stream) Handler(log *zap.SugaredLogger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorw("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id := uuid.NewString()
		ch := s.Acquire(id)
		defer s.Release(id)

		go drainClient(conn)

		for raw := range ch {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}
}

// drainClient discards anything the client sends and returns when the
// connection closes, so the Handler's write loop notices disconnects.
func drainClient(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
	}
}
