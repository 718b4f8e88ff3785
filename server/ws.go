package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/docchat/docchat/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the WebSocket wire format.
type Message struct {
	Type      string `json:"type"` // question | stream | error | done
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("error reading message: %v", err)
			}
			return
		}

		s.handleWSQuestion(r, conn, msg)
	}
}

func (s *Server) handleWSQuestion(r *http.Request, conn *websocket.Conn, msg Message) {
	if strings.TrimSpace(msg.Content) == "" {
		s.sendWS(conn, "error", "empty question")
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = conn.RemoteAddr().String()
	}

	sess := s.sessions.Get(sessionID)
	sess.Lock()
	defer sess.Unlock()

	history := sess.Window(s.engine.HistoryWindow())
	sess.Append(models.NewChatMessage(models.RoleUser, msg.Content))

	answer, err := s.engine.Stream(r.Context(), history, msg.Content, func(fragment string) {
		s.sendWS(conn, "stream", fragment)
	})
	if err != nil {
		errText := "Error: " + err.Error()
		sess.Append(models.NewChatMessage(models.RoleAssistant, errText))
		s.sendWS(conn, "error", errText)
		return
	}

	sess.Append(models.NewChatMessage(models.RoleAssistant, answer))
	s.sendWS(conn, "done", "")
}

func (s *Server) sendWS(conn *websocket.Conn, msgType, content string) {
	if err := conn.WriteJSON(Message{Type: msgType, Content: content}); err != nil {
		log.Printf("error sending message: %v", err)
	}
}
