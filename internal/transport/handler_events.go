package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/model"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = eventPongWait * 9 / 10
)

// handleEvents streams editor and store events to a websocket client, one
// JSON message per event. Clients only listen; any message they send is
// ignored.
func handleEvents(deps Dependencies) http.HandlerFunc {
	policy := newCORSPolicy(deps.Config.Server.CORS)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || policy.allows(origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Events == nil {
			WriteError(w, &model.ErrorEnvelope{Code: model.ErrNotFound, Message: "event stream is disabled"})
			return
		}
		logger := observability.LoggerFrom(r.Context(), deps.logger())

		// Subscribed before the upgrade: every event published after the
		// handshake reaches the client.
		events, cancel := deps.Events.Subscribe()
		defer func() {
			cancel()
			observeSubscribers(deps)
		}()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("event stream upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		observeSubscribers(deps)
		logger.Info("event stream opened", zap.String("remote_addr", r.RemoteAddr))

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
			conn.SetReadDeadline(time.Now().Add(eventPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(eventPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(eventPingPeriod)
		defer ping.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					logger.Debug("event stream write failed", zap.Error(err))
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				logger.Info("event stream closed", zap.String("remote_addr", r.RemoteAddr))
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

func observeSubscribers(deps Dependencies) {
	if deps.Metrics != nil {
		deps.Metrics.SetEventSubscribers(deps.Events.Subscribers())
	}
}
