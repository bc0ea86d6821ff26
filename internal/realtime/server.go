package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tuniwaste/exchange/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
)

// Authenticator resolves a bearer credential to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

// inbound is a client-to-server frame. Data carries the thread id.
type inbound struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

type subscription struct {
	ThreadID string `json:"threadId"`
}

type frameError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server upgrades authenticated requests and runs their connections
// against the hub.
type Server struct {
	hub          *Hub
	auth         Authenticator
	participants ParticipantSource
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

type ServerOption func(*Server)

// WithAllowedOrigins restricts browser origins; an empty list allows all.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(hub *Hub, auth Authenticator, participants ParticipantSource, opts ...ServerOption) *Server {
	s := &Server{
		hub:          hub,
		auth:         auth,
		participants: participants,
		logger:       slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BearerToken extracts the credential from the Authorization header or,
// for browsers that cannot set headers on WebSocket requests, the token
// query parameter.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		http.Error(w, `{"error":"missing credential","code":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	user, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, `{"error":"invalid credential","code":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := s.hub.Register(user.ID)
	go s.writePump(ws, client)
	s.readPump(ws, client, user)
}

// readPump handles inbound frames until the connection fails, then tears
// the client down.
func (s *Server) readPump(ws *websocket.Conn, c *Client, user domain.User) {
	defer func() {
		s.hub.Unregister(c)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxInboundSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := ws.ReadJSON(&in); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.reply(c, "error", frameError{Error: "malformed frame", Code: "bad_request"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "client_id", c.ID, "error", err)
			}
			return
		}
		s.handle(c, user, in)
	}
}

func (s *Server) handle(c *Client, user domain.User, in inbound) {
	switch in.Event {
	case "subscribe", "join-thread":
		if err := s.canJoin(user, in.Data); err != nil {
			s.reply(c, "error", frameError{Error: err.Error(), Code: domain.KindOf(err).String()})
			return
		}
		if !s.hub.Join(c, ThreadRoom(in.Data)) {
			s.reply(c, "error", frameError{Error: "connection closed", Code: "gone"})
			return
		}
		s.reply(c, "subscribed", subscription{ThreadID: in.Data})
	case "unsubscribe", "leave-thread":
		s.hub.Leave(c, ThreadRoom(in.Data))
		s.reply(c, "unsubscribed", subscription{ThreadID: in.Data})
	case "ping":
		s.reply(c, "pong", nil)
	default:
		s.reply(c, "error", frameError{Error: "unknown event", Code: "bad_request"})
	}
}

func (s *Server) canJoin(user domain.User, threadID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair, err := s.participants.Participants(ctx, threadID)
	if err != nil {
		return err
	}
	if pair[0] != user.ID && pair[1] != user.ID {
		return domain.ErrNotParticipant
	}
	return nil
}

func (s *Server) reply(c *Client, event string, data any) {
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return
	}
	c.trySend(msg)
}

// writePump drains the client queue onto the socket and keeps the
// connection alive with pings.
func (s *Server) writePump(ws *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg := <-c.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
