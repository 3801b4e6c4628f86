package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"crashpilot/internal/game"
)

// wsContext bounds the engine calls made on behalf of one client message.
func wsContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// inboundMessage is the envelope clients send: a type plus a type-specific
// payload.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// gameWebSocketHandler speaks the realtime session protocol: one connected
// message on attach, then request/response pairs interleaved with the hub's
// broadcast stream.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	sessionID := conn.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session := s.engine.Ledger().GetOrCreate(sessionID, "")
	client := s.hub.Register(conn, sessionID)

	client.Send(game.WSMessage{Type: "connected", Data: map[string]interface{}{
		"sessionId": sessionID,
		"balance":   session.Balance,
		"gameState": s.engine.GameState(),
	}})

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for session %s: %v", sessionID, err)
			s.hub.Unregister(client)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			client.Send(game.WSMessage{Type: "error", Data: map[string]string{
				"message": "Malformed message",
			}})
			continue
		}

		s.handleClientMessage(client, sessionID, msg)
	}
}

func (s *FiberServer) handleClientMessage(client *game.Client, sessionID string, msg inboundMessage) {
	sendError := func(err error) {
		client.Send(game.WSMessage{Type: "error", Data: map[string]string{
			"message": err.Error(),
		}})
	}

	switch msg.Type {
	case "set_player_name":
		var req struct {
			PlayerName string `json:"playerName"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.PlayerName == "" {
			client.Send(game.WSMessage{Type: "error", Data: map[string]string{
				"message": "playerName is required",
			}})
			return
		}
		session := s.engine.Ledger().SetName(sessionID, req.PlayerName)
		client.Send(game.WSMessage{Type: "player_name_set", Data: map[string]interface{}{
			"sessionId":  sessionID,
			"playerName": session.PlayerName,
			"balance":    session.Balance,
		}})

	case "place_bet":
		var req game.BetRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				client.Send(game.WSMessage{Type: "error", Data: map[string]string{
					"message": "Malformed bet request",
				}})
				return
			}
		}
		req.SessionID = sessionID

		ctx, cancel := wsContext()
		defer cancel()
		result, err := s.engine.PlaceBet(ctx, req)
		if err != nil {
			sendError(err)
			return
		}
		client.Send(game.WSMessage{Type: "bet_placed", Data: result})

	case "cash_out":
		ctx, cancel := wsContext()
		defer cancel()
		result, err := s.engine.CashOut(ctx, sessionID)
		if err != nil {
			sendError(err)
			return
		}
		client.Send(game.WSMessage{Type: "cash_out_success", Data: result})

	case "ping":
		client.Send(game.WSMessage{Type: "pong"})
	}
}
