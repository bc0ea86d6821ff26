package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tuniwaste/exchange/internal/domain"
)

type stubAuth map[string]domain.User

func (s stubAuth) Authenticate(_ context.Context, token string) (domain.User, error) {
	u, ok := s[token]
	if !ok {
		return domain.User{}, errors.New("bad token")
	}
	return u, nil
}

type stubParticipants map[string][2]string

func (s stubParticipants) Participants(_ context.Context, threadID string) ([2]string, error) {
	p, ok := s[threadID]
	if !ok {
		return [2]string{}, domain.ErrThreadNotFound
	}
	return p, nil
}

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type harness struct {
	hub *Hub
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hub := NewHub(quietLogger())
	auth := stubAuth{
		"tok-seller": {ID: "seller", Role: domain.RoleGenerator},
		"tok-buyer":  {ID: "buyer", Role: domain.RoleBuyer},
		"tok-other":  {ID: "other", Role: domain.RoleBuyer},
	}
	parts := stubParticipants{"t1": {"buyer", "seller"}}
	srv := httptest.NewServer(NewServer(hub, auth, parts, WithServerLogger(quietLogger())))
	t.Cleanup(srv.Close)
	return &harness{hub: hub, srv: srv}
}

func (h *harness) dial(t *testing.T, token string, viaQuery bool) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	header := http.Header{}
	if viaQuery {
		url += "?token=" + token
	} else {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r received
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return r
}

func TestServer_RejectsMissingOrBadCredential(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")

	for _, header := range []http.Header{
		{},
		{"Authorization": []string{"Bearer nope"}},
	} {
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		if err == nil {
			t.Fatalf("expected dial to fail")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %+v", resp)
		}
		resp.Body.Close()
	}
}

func TestServer_PushesToUserRoom(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := h.dial(t, "tok-seller", false)
	b := h.dial(t, "tok-seller", true)
	waitFor(t, "two seller connections", func() bool { return h.hub.roomSize(UserRoom("seller")) == 2 })

	if n := h.hub.EmitToUser("seller", "notification", map[string]string{"title": "New bid received"}); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		got := read(t, conn)
		if got.Event != "notification" || !strings.Contains(string(got.Data), "New bid received") {
			t.Fatalf("unexpected frame %+v", got)
		}
	}
}

func TestServer_SubscribeChecksParticipants(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	buyer := h.dial(t, "tok-buyer", false)
	other := h.dial(t, "tok-other", false)

	if err := buyer.WriteJSON(inbound{Event: "subscribe", Data: "t1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := read(t, buyer); got.Event != "subscribed" {
		t.Fatalf("expected subscribed, got %+v", got)
	}

	if err := other.WriteJSON(inbound{Event: "join-thread", Data: "t1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := read(t, other)
	if got.Event != "error" || !strings.Contains(string(got.Data), "forbidden") {
		t.Fatalf("expected forbidden error, got %+v", got)
	}

	if err := other.WriteJSON(inbound{Event: "subscribe", Data: "missing"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := read(t, other); got.Event != "error" || !strings.Contains(string(got.Data), "not_found") {
		t.Fatalf("expected not_found error, got %+v", got)
	}

	if n := h.hub.EmitToThread("t1", "new-message", map[string]string{"body": "when can you ship?"}); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if got := read(t, buyer); got.Event != "new-message" {
		t.Fatalf("expected new-message, got %+v", got)
	}

	if err := buyer.WriteJSON(inbound{Event: "unsubscribe", Data: "t1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := read(t, buyer); got.Event != "unsubscribed" {
		t.Fatalf("expected unsubscribed, got %+v", got)
	}
	if got := h.hub.roomSize(ThreadRoom("t1")); got != 0 {
		t.Fatalf("expected empty thread room, got %d", got)
	}
}

func TestServer_DisconnectCleansUp(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	conn := h.dial(t, "tok-buyer", false)
	if err := conn.WriteJSON(inbound{Event: "subscribe", Data: "t1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	read(t, conn)

	conn.Close()
	waitFor(t, "registry cleanup", func() bool {
		return h.hub.roomSize(UserRoom("buyer")) == 0 && h.hub.roomSize(ThreadRoom("t1")) == 0
	})
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header", header: "Bearer abc", want: "abc"},
		{name: "query", query: "?token=xyz", want: "xyz"},
		{name: "non bearer scheme", header: "Basic abc", want: ""},
		{name: "header wins", header: "Bearer abc", query: "?token=xyz", want: "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws"+tc.query, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := BearerToken(r); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

type countingSource struct {
	calls int
	stubParticipants
}

func (c *countingSource) Participants(ctx context.Context, id string) ([2]string, error) {
	c.calls++
	return c.stubParticipants.Participants(ctx, id)
}

func TestParticipantCache(t *testing.T) {
	t.Parallel()

	src := &countingSource{stubParticipants: stubParticipants{"t1": {"a", "b"}}}
	cache, err := NewParticipantCache(src, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	for range 3 {
		pair, err := cache.Participants(context.Background(), "t1")
		if err != nil || pair != [2]string{"a", "b"} {
			t.Fatalf("unexpected %v %v", pair, err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 source call, got %d", src.calls)
	}
	if _, err := cache.Participants(context.Background(), "nope"); !errors.Is(err, domain.ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func TestServer_SubscribeAfterUnregisterReportsError(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger())
	srv := NewServer(hub, stubAuth{}, stubParticipants{"t1": {"buyer", "seller"}}, WithServerLogger(quietLogger()))

	// Not registered with the hub, but its queue is still readable.
	c := &Client{ID: 42, UserID: "buyer", send: make(chan []byte, 1), done: make(chan struct{})}
	srv.handle(c, domain.User{ID: "buyer", Role: domain.RoleBuyer}, inbound{Event: "subscribe", Data: "t1"})

	select {
	case raw := <-c.send:
		var got received
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if got.Event != "error" {
			t.Fatalf("expected error frame, got %s", got.Event)
		}
	default:
		t.Fatalf("expected a reply frame")
	}
	if got := hub.roomSize(ThreadRoom("t1")); got != 0 {
		t.Fatalf("expected empty thread room, got %d", got)
	}
}
