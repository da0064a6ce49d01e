package ws

import (
	"encoding/json"
	"log"
	"sync"

	"quizduel/internal/model"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgSearchStarted MessageType = "search_started"
	MsgSearchEnded   MessageType = "search_ended"
	MsgMatchStarted  MessageType = "match_started"
	MsgMatchEnded    MessageType = "match_ended"
	MsgError         MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Hub manages one WebSocket connection per participant and delivers the
// matchmaker's presenter events to it (implements service.Presenter).
type Hub struct {
	conns map[string]*Connection // participantID -> conn
	mu    sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	outbound   chan *outboundMessage

	// Called after a participant's socket goes away; wired to the session
	// registry so an abandoned search gets cancelled.
	onDisconnect func(participantID string)
}

// Connection represents a participant's WebSocket connection
type Connection struct {
	ParticipantID string
	Send          chan []byte
	Hub           *Hub
}

type outboundMessage struct {
	ParticipantID string
	Message       *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		outbound:   make(chan *outboundMessage, 256),
	}
	go h.run()
	return h
}

// SetDisconnectHandler wires the hook run when a participant disconnects.
func (h *Hub) SetDisconnectHandler(f func(participantID string)) {
	h.mu.Lock()
	h.onDisconnect = f
	h.mu.Unlock()
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			// A newer socket replaces any lingering one.
			if existing, ok := h.conns[conn.ParticipantID]; ok {
				close(existing.Send)
			}
			h.conns[conn.ParticipantID] = conn
			h.mu.Unlock()
			log.Printf("ws: participant %s connected", conn.ParticipantID)

		case conn := <-h.unregister:
			h.mu.Lock()
			gone := false
			if existing, ok := h.conns[conn.ParticipantID]; ok && existing == conn {
				delete(h.conns, conn.ParticipantID)
				close(conn.Send)
				gone = true
			}
			handler := h.onDisconnect
			h.mu.Unlock()
			if gone {
				log.Printf("ws: participant %s disconnected", conn.ParticipantID)
				if handler != nil {
					handler(conn.ParticipantID)
				}
			}

		case msg := <-h.outbound:
			h.mu.RLock()
			if conn, ok := h.conns[msg.ParticipantID]; ok {
				data, _ := json.Marshal(msg.Message)
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

func (h *Hub) send(participantID string, msgType MessageType, payload interface{}) {
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	h.outbound <- &outboundMessage{
		ParticipantID: participantID,
		Message:       &Message{Type: msgType, Payload: data},
	}
}

// SearchStarted implements service.Presenter.
func (h *Hub) SearchStarted(participantID string) {
	h.send(participantID, MsgSearchStarted, nil)
}

// SearchEnded implements service.Presenter.
func (h *Hub) SearchEnded(participantID string) {
	h.send(participantID, MsgSearchEnded, nil)
}

// MatchStarted implements service.Presenter.
func (h *Hub) MatchStarted(participantID string, match *model.Match) {
	h.send(participantID, MsgMatchStarted, match)
}

// MatchEnded implements service.Presenter.
func (h *Hub) MatchEnded(participantID string, match *model.Match) {
	h.send(participantID, MsgMatchEnded, match)
}

// Error implements service.Presenter.
func (h *Hub) Error(participantID string, message string) {
	h.send(participantID, MsgError, errorPayload{Message: message})
}
