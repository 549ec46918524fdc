package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cuepool/backend/internal/game"
	"github.com/cuepool/backend/internal/match"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin is enforced by the WebSocketCORSCheck middleware.
		return true
	},
}

// Client represents a connected WebSocket client
type Client struct {
	conn    *websocket.Conn
	userID  string
	matchID string
	send    chan []byte
}

// Hub maintains the set of active clients and their match rooms.
type Hub struct {
	clients    map[string]*Client            // userID -> Client
	matchRooms map[string]map[string]*Client // matchID -> userID -> Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		matchRooms: make(map[string]map[string]*Client),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Replace any stale connection for the same user.
	if old, exists := h.clients[c.userID]; exists {
		close(old.send)
	}
	h.clients[c.userID] = c
	room := h.matchRooms[c.matchID]
	if room == nil {
		room = make(map[string]*Client)
		h.matchRooms[c.matchID] = room
	}
	room[c.userID] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[c.userID]; exists && current == c {
		delete(h.clients, c.userID)
	}
	if room, exists := h.matchRooms[c.matchID]; exists {
		if current, ok := room[c.userID]; ok && current == c {
			delete(room, c.userID)
		}
		if len(room) == 0 {
			delete(h.matchRooms, c.matchID)
		}
	}
}

// BroadcastToMatch sends a message to both players in a match room.
func (h *Hub) BroadcastToMatch(matchID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, exists := h.matchRooms[matchID]; exists {
		for _, client := range room {
			select {
			case client.send <- data:
			default:
				// Client's buffer is full
				log.Printf("[WS] send buffer full for %s in match %s, dropping message", client.userID, matchID)
			}
		}
	}
}

// SendToUser sends a message to a specific connected user.
func (h *Hub) SendToUser(userID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, exists := h.clients[userID]; exists {
		select {
		case client.send <- data:
		default:
			log.Printf("[WS] SendToUser dropped message for %s (buffer full)", userID)
		}
	}
}

// WSMessage is the envelope for client messages on the match channel.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServeMatchWS handles GET /match/:id/ws. The caller must be a participant
// of the match; score_update and end_match flow through the manager so the
// websocket path shares the HTTP path's settlement semantics.
func ServeMatchWS(hub *Hub, mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		matchID := c.Param("id")

		m, found := mgr.Match(matchID)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		if m.PlayerA.UserID != userID && m.PlayerB.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant in this match"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] upgrade failed for %s: %v", userID, err)
			return
		}

		client := &Client{
			conn:    conn,
			userID:  userID,
			matchID: matchID,
			send:    make(chan []byte, 16),
		}
		hub.register(client)
		log.Printf("[WS] %s connected to match %s", userID, matchID)

		go client.writePump()
		client.readPump(hub, mgr)
	}
}

func (c *Client) readPump(hub *Hub, mgr *game.Manager) {
	defer func() {
		hub.unregister(c)
		c.conn.Close()
		log.Printf("[WS] %s disconnected from match %s", c.userID, c.matchID)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] read error for %s: %v", c.userID, err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case "score_update":
			var data struct {
				Score int `json:"score"`
			}
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.sendError("invalid score payload")
				continue
			}
			if err := mgr.ReportScore(c.matchID, c.userID, data.Score); err != nil {
				c.sendError(err.Error())
				continue
			}
			if m, found := mgr.Match(c.matchID); found {
				hub.BroadcastToMatch(c.matchID, gin.H{
					"type":     "score_update",
					"match_id": c.matchID,
					"player_a": m.PlayerA,
					"player_b": m.PlayerB,
				})
			}

		case "end_match":
			s, err := mgr.EndMatch(c.matchID)
			if err != nil {
				if err == match.ErrAlreadySettled {
					c.sendError("already_settled")
				} else {
					c.sendError(err.Error())
				}
				continue
			}
			hub.BroadcastToMatch(c.matchID, gin.H{
				"type":       "match_ended",
				"match_id":   c.matchID,
				"settlement": s,
			})

		case "ping":
			c.send <- []byte(`{"type":"pong"}`)

		default:
			c.sendError("unknown message type")
		}
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed - connection is being replaced or cleaned up.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for %s: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
	select {
	case c.send <- data:
	default:
	}
}
