package server

import (
	"context"
	"net/http"
	"time"

	"supplyline/internal/broadcast"
	"supplyline/internal/game"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is the reverse proxy's job.
		return true
	},
}

// handleWS upgrades the connection and pumps the lobby's broadcast bus
// to the client. Targeted messages (acks, personal pop-ups, resource
// grants) are delivered only to the addressed player; everything else
// goes to every connection. A kick_all closes the socket after
// delivery.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	gameID, err := s.gameID(r)
	if err != nil {
		s.writeError(w, "ws", err)
		return
	}
	playerID, err := uuid.Parse(r.URL.Query().Get("player_id"))
	if err != nil {
		s.writeError(w, "ws", game.Errorf(game.KindBadRequest, "invalid player_id"))
		return
	}

	msgs, unsubscribe, err := s.engine.Subscribe(r.Context(), gameID)
	if err != nil {
		s.writeError(w, "ws", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		unsubscribe()
		s.log.Warn().Err(err).Str("lobby_id", gameID.String()).Msg("websocket upgrade failed")
		return
	}

	s.log.Debug().
		Str("lobby_id", gameID.String()).
		Str("player_id", playerID.String()).
		Msg("websocket connected")

	done := make(chan struct{})
	go s.readPump(conn, done)
	go s.writePump(conn, gameID, playerID, msgs, unsubscribe, done)
}

// readPump discards inbound frames; the socket is broadcast-only. Its
// job is to notice the close and answer control frames.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(
	conn *websocket.Conn,
	gameID, playerID uuid.UUID,
	msgs <-chan broadcast.Message,
	unsubscribe func(),
	done <-chan struct{},
) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
		if err := s.engine.DisconnectPlayer(context.Background(), gameID, playerID); err != nil {
			s.log.Debug().Err(err).
				Str("lobby_id", gameID.String()).
				Str("player_id", playerID.String()).
				Msg("disconnect announce failed")
		}
	}()

	for {
		select {
		case <-done:
			return

		case msg, ok := <-msgs:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "lobby closed"))
				return
			}
			if msg.Target != nil && *msg.Target != playerID {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if msg.Kind == broadcast.KindKickAll {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game stopped"))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
