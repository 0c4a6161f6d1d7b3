// Package websocket implements the publishing side of the realtime channel:
// a hub that routes messages published on a topic to every connection that
// subscribed to it.
package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool // owned by the hub goroutine
}

type subscription struct {
	client *Client
	topic  string
	on     bool
}

// Hub maintains the set of active clients and their topic subscriptions.
type Hub struct {
	clients    map[*Client]bool
	publish    chan Frame
	subscribe  chan subscription
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		publish:    make(chan Frame, 64),
		subscribe:  make(chan subscription),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run owns all hub state; it must be started before clients connect.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			if sub.client.topics == nil {
				sub.client.topics = make(map[string]bool)
			}
			if sub.on {
				sub.client.topics[sub.topic] = true
			} else {
				delete(sub.client.topics, sub.topic)
			}
		case frame := <-h.publish:
			message, err := json.Marshal(frame)
			if err != nil {
				log.Printf("[hub] could not encode message for topic %s: %v", frame.Topic, err)
				continue
			}
			for client := range h.clients {
				if client.topics[frame.Topic] {
					h.deliver(client, message)
				}
			}
		}
	}
}

// deliver drops clients whose send buffer is full.
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		close(client.send)
		delete(h.clients, client)
	}
}

// Publish queues data for every subscriber of topic.
func (h *Hub) Publish(topic string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	h.publish <- Frame{Topic: topic, Data: raw}
	return nil
}

// ServeWs upgrades the HTTP connection and registers the client with the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hub] upgrade failed: %v", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump handles subscribe/unsubscribe frames until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[hub] read error: %v", err)
			}
			return
		}
		switch frame.Action {
		case ActionSubscribe:
			c.hub.subscribe <- subscription{client: c, topic: frame.Topic, on: true}
		case ActionUnsubscribe:
			c.hub.subscribe <- subscription{client: c, topic: frame.Topic, on: false}
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
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
