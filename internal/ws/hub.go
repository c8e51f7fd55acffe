package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 64
)

// Client - одно живое соединение подрядчика. Поле rooms - явная таблица
// членства: "сначала вступи в комнату, потом действуй" проверяется по
// ней, а не по внутреннему состоянию транспорта.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	connID string
	token  string

	authID string
	email  string

	rooms map[string]struct{} // читается и меняется только из цикла чтения соединения
}

// Hub хранит членство соединений в комнатах и рассылает события.
// Рассылка негарантированная: переполненному клиенту событие не
// доставляется, вместо того чтобы тормозить остальных.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewHub создает пустой хаб.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// Join добавляет соединение в комнату.
func (h *Hub) Join(roomName string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomName]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[roomName] = room
	}
	room[c] = struct{}{}
}

// Leave убирает соединение из комнаты.
func (h *Hub) Leave(roomName string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomName]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, roomName)
	}
}

// Broadcast шлет событие всем участникам комнаты, кроме except (nil -
// всем). Не блокируется на медленных клиентах.
func (h *Hub) Broadcast(roomName string, resp Response, except *Client) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomName] {
		if c == except {
			continue
		}
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Send кладет сообщение в очередь одного соединения.
func (c *Client) Send(resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// forceClose обрывает цикл чтения соединения. Сообщения, уже лежащие в
// очереди, writePump успевает дописать при разборе отключения.
func (c *Client) forceClose() {
	c.conn.SetReadDeadline(time.Now())
}

// writePump переносит сообщения из очереди клиента в сокет и
// поддерживает соединение ping-сообщениями.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
