package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// SessionPayload is pushed to proctor/admin dashboards whenever a session
// changes state or records a violation.
type SessionPayload struct {
	SessionID      string            `json:"session_id"`
	StudentID      string            `json:"student_id"`
	ExamRef        string            `json:"exam_ref,omitempty"`
	State          string            `json:"state"`
	IntegrityScore int               `json:"integrity_score"`
	CriticalCount  int               `json:"critical_count"`
	Counts         map[string]int    `json:"counts,omitempty"`
	CameraLive     bool              `json:"camera_live"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Violation      *ViolationPayload `json:"violation,omitempty"`
}

// ViolationPayload mirrors one ledger event for the dashboard feed.
type ViolationPayload struct {
	EventID     string            `json:"event_id"`
	Type        string            `json:"type"`
	Severity    string            `json:"severity"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	EvidenceRef string            `json:"evidence_ref,omitempty"`
	DetectedAt  time.Time         `json:"detected_at"`
}

type proctorMessage struct {
	examRef string
	payload []byte
}

// ProctorHub fans session updates out to dashboard clients. Clients may
// subscribe to specific exams; an empty subscription receives everything.
type ProctorHub struct {
	register   chan *proctorClient
	unregister chan *proctorClient
	broadcast  chan proctorMessage
	clients    map[*proctorClient]struct{}
}

func NewProctorHub() *ProctorHub {
	return &ProctorHub{
		register:   make(chan *proctorClient),
		unregister: make(chan *proctorClient),
		broadcast:  make(chan proctorMessage, 256),
		clients:    make(map[*proctorClient]struct{}),
	}
}

func (h *ProctorHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				client.conn.Close()
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.allowAll {
					if _, ok := client.allowedExams[msg.examRef]; !ok {
						continue
					}
				}
				select {
				case client.send <- msg.payload:
				default:
					delete(h.clients, client)
					close(client.send)
					client.conn.Close()
				}
			}
		}
	}
}

// Broadcast pushes payload to all clients subscribed to its exam.
func (h *ProctorHub) Broadcast(payload SessionPayload) {
	if h == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("ws: marshal session payload failed", zap.Error(err))
		return
	}
	h.broadcast <- proctorMessage{
		examRef: payload.ExamRef,
		payload: data,
	}
}

type proctorClient struct {
	hub          *ProctorHub
	conn         *websocket.Conn
	send         chan []byte
	allowedExams map[string]struct{}
	allowAll     bool
}

func newProctorClient(hub *ProctorHub, conn *websocket.Conn, allowed map[string]struct{}, allowAll bool) *proctorClient {
	return &proctorClient{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		allowedExams: allowed,
		allowAll:     allowAll,
	}
}

func (c *proctorClient) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *proctorClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
