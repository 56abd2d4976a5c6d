package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// JobEvent is pushed to a user's sockets whenever one of their jobs
// changes state.
type JobEvent struct {
	Type     string           `json:"type"`
	JobID    string           `json:"job_id"`
	Status   models.JobStatus `json:"status"`
	AudioURL string           `json:"audio_url,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type message struct {
	userID int
	data   []byte
}

// Hub fans job events out to the sockets of the job's owner.
type Hub struct {
	clients    map[int]map[*Client]bool
	send       chan message
	register   chan *Client
	unregister chan *Client
	upgrader   websocket.Upgrader
	logger     *logger.Log
}

type Client struct {
	hub    *Hub
	userID int
	conn   *websocket.Conn
	send   chan []byte
}

// NewHub accepts upgrades only from allowedOrigins; an empty list accepts
// same-host requests only.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[int]map[*Client]bool),
		send:       make(chan message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.New(),
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed[origin] || allowed["*"] {
				return true
			}
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.logger.Debug("Client connected")

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.send:
			for client := range h.clients[msg.userID] {
				select {
				case client.send <- msg.data:
				default:
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	set := h.clients[client.userID]
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	h.logger.Debug("Client disconnected")
}

// JobUpdated implements worker.Notifier.
func (h *Hub) JobUpdated(job *models.Job, audioURL string) {
	data, err := json.Marshal(JobEvent{
		Type:     "job",
		JobID:    job.ID,
		Status:   job.Status,
		AudioURL: audioURL,
		Error:    job.Error,
	})
	if err != nil {
		return
	}
	select {
	case h.send <- message{userID: job.UserID, data: data}:
	default:
		h.logger.Warn("Websocket hub backlog full, dropping job event")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.WithError(err).Warn("WebSocket write error")
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

// Handler upgrades the request for the user that userID resolves.
func (h *Hub) Handler(userID func(r *http.Request) (int, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(r)
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.WithError(err).Warn("WebSocket upgrade error")
			return
		}

		client := &Client{hub: h, userID: id, conn: conn, send: make(chan []byte, 16)}
		h.register <- client

		go client.writePump()
		go client.readPump()
	}
}
