package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quietroom/stillengine/internal/events"
	"github.com/quietroom/stillengine/internal/player"
	"github.com/quietroom/stillengine/internal/version"
)

const (
	// Recent events replayed to a display when it (re)connects, enough
	// to cover a full segment of gate and animation activity.
	recentEventsCount = 50

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // must be less than pongWait
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The meditation display runs on the room's local network; the
	// event stream carries no secrets.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsHello is the first frame on every connection: the engine identity
// plus the session in progress, if any, so a display reconnecting
// mid-meditation can redraw its scene without waiting for the next
// event.
type wsHello struct {
	Type    string           `json:"type"`
	Engine  string           `json:"engine"`
	Version string           `json:"version"`
	Session *player.Snapshot `json:"session,omitempty"`
}

func helloFrame() wsHello {
	h := wsHello{Type: "hello", Engine: GetEngineName(), Version: version.Version}
	if manager != nil {
		if sess, err := manager.Current(); err == nil {
			snap := sess.CurrentState()
			h.Session = &snap
		}
	}
	return h
}

// wsEventsHandler streams session events to a connected display.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	sub := events.Subscribe()

	// Hello first, then the recent backlog, then the live stream.
	hello, err := json.Marshal(helloFrame())
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
			events.Unsubscribe(sub)
			conn.Close()
			return
		}
	}

	for _, e := range events.RecentEvents(recentEventsCount) {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("ws write recent event failed: %v", err)
			events.Unsubscribe(sub)
			conn.Close()
			return
		}
	}

	// Reader goroutine handles pongs and notices the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			events.Unsubscribe(sub)
			conn.Close()
			return

		case e, ok := <-sub:
			if !ok {
				conn.Close()
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("ws write event failed: %v", err)
				events.Unsubscribe(sub)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				events.Unsubscribe(sub)
				conn.Close()
				return
			}
		}
	}
}
