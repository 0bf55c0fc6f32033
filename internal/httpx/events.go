package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"local.dev/socialfeed/internal/feed"
	"local.dev/socialfeed/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// newUpgrader accepts clients without an Origin header and browsers on the
// allowed origin.
func newUpgrader(allowed string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || sameOrigin(allowed, origin)
		},
	}
}

// HandleEvents streams a snapshot on connect and after every change. Slow
// readers only ever get the latest snapshot.
func HandleEvents(app *AppCtx) http.HandlerFunc {
	log := app.Log.Component("events")
	upgrader := newUpgrader(app.AllowedOrigin)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}
		defer conn.Close()

		observability.EventSubscribers.Inc()
		defer observability.EventSubscribers.Dec()

		updates := make(chan feed.Snapshot, 1)
		push := func(s feed.Snapshot) {
			select {
			case updates <- s:
			default:
				// replace the pending snapshot with the newer one
				select {
				case <-updates:
				default:
				}
				select {
				case updates <- s:
				default:
				}
			}
		}
		unsubscribe := app.Feed.Subscribe(push)
		defer unsubscribe()
		push(app.Feed.Snapshot())

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
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
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case snap := <-updates:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(snap); err != nil {
					log.Debug("event stream closed", slog.String("error", err.Error()))
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
