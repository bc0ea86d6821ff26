// Package realtime is the WebSocket delivery bus. Connections join the
// room of their user on connect and may subscribe to thread rooms; pushes
// are best effort and never block the caller.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ClientBufferSize is the per-connection outbound queue. A push to a full
// queue is dropped for that connection only.
const ClientBufferSize = 64

// Frame is the envelope of every server-to-client message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one registered connection.
type Client struct {
	ID     uint64
	UserID string

	send    chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// Send is the outbound queue drained by the connection writer.
func (c *Client) Send() <-chan []byte { return c.send }

// Done is closed when the client is unregistered.
func (c *Client) Done() <-chan struct{} { return c.done }

// Dropped counts pushes lost to a full queue.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// trySend queues msg without blocking and reports whether it was queued.
func (c *Client) trySend(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

func UserRoom(userID string) string     { return "user:" + userID }
func ThreadRoom(threadID string) string { return "thread:" + threadID }

// Hub owns the connection registry: room → clients and the inverse
// client → rooms index used to tear a connection down.
type Hub struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	nextID  atomic.Uint64
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
	}
}

// Register adds a connection for userID and joins it to the user room.
func (h *Hub) Register(userID string) *Client {
	c := &Client{
		ID:     h.nextID.Add(1),
		UserID: userID,
		send:   make(chan []byte, ClientBufferSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = make(map[string]struct{})
	h.joinLocked(c, UserRoom(userID))
	h.mu.Unlock()

	h.logger.Debug("realtime client registered", "client_id", c.ID, "user_id", userID)
	return c
}

// Unregister removes the client from every room and closes Done. Calling
// it more than once is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for room := range h.clients[c] {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	h.mu.Unlock()

	c.once.Do(func() { close(c.done) })
	h.logger.Debug("realtime client unregistered", "client_id", c.ID, "user_id", c.UserID, "dropped", c.Dropped())
}

// Close unregisters every client. Their write pumps send a close frame
// and exit.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}

// Join adds the client to room. Joining twice is a no-op. It returns false
// for clients that are no longer registered.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	h.joinLocked(c, room)
	return true
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.leaveLocked(c, room)
}

func (h *Hub) joinLocked(c *Client, room string) {
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.clients[c][room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.clients[c], room)
}

// EmitToUser pushes to every connection of the user and returns how many
// connections the frame was queued for.
func (h *Hub) EmitToUser(userID, event string, data any) int {
	return h.Emit(UserRoom(userID), event, data)
}

// EmitToThread pushes to every connection subscribed to the thread.
func (h *Hub) EmitToThread(threadID, event string, data any) int {
	return h.Emit(ThreadRoom(threadID), event, data)
}

// Emit queues one frame for every member of room. Rooms without members
// drop the frame silently.
func (h *Hub) Emit(room, event string, data any) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	if len(members) == 0 {
		return 0
	}

	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		h.logger.Error("realtime frame encode failed", "event", event, "room", room, "error", err)
		return 0
	}

	sent := 0
	for _, c := range members {
		if c.trySend(msg) {
			sent++
		}
	}
	return sent
}

// roomSize returns the number of connections in room.
func (h *Hub) roomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// joinedRooms returns the rooms a client is joined to.
func (h *Hub) joinedRooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.clients[c]))
	for room := range h.clients[c] {
		out = append(out, room)
	}
	return out
}
