package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
	"github.com/tuniwaste/exchange/internal/view"
)

const (
	sellerID = "11111111-1111-1111-1111-111111111111"
	buyerID  = "22222222-2222-2222-2222-222222222222"
	otherID  = "44444444-4444-4444-4444-444444444444"
)

type emission struct {
	room  string
	event string
	data  any
}

type recordingEmitter struct {
	mu    sync.Mutex
	calls []emission
}

func (e *recordingEmitter) EmitToUser(userID, event string, data any) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, emission{room: "user:" + userID, event: event, data: data})
	return 1
}

func (e *recordingEmitter) EmitToThread(threadID, event string, data any) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, emission{room: "thread:" + threadID, event: event, data: data})
	return 1
}

func (e *recordingEmitter) snapshot() []emission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emission(nil), e.calls...)
}

type recordingHistory struct {
	mu      sync.Mutex
	changes []domain.StatusChange
	err     error
}

func (h *recordingHistory) Record(_ context.Context, c domain.StatusChange) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, c)
	return h.err
}

var testNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestDispatcher(opts ...Option) (*Dispatcher, *recordingEmitter, *recordingHistory) {
	em := &recordingEmitter{}
	hist := &recordingHistory{}
	opts = append([]Option{WithHistory(hist), WithClock(clock.NewFixed(testNow))}, opts...)
	return New(em, view.NewRenderer(nil, nil, nil), opts...), em, hist
}

func TestHandle_MessageSent(t *testing.T) {
	t.Parallel()

	d, em, _ := newTestDispatcher()
	thread := domain.Thread{ID: "th-1", Participants: domain.OrderedPair(sellerID, buyerID)}
	msg := domain.Message{ID: "m-1", ThreadID: "th-1", SenderID: buyerID, SenderRole: domain.RoleBuyer, Body: "Can you deliver Monday?"}

	d.handle(context.Background(), domain.MessageSent{Message: msg, Thread: thread})

	calls := em.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 emissions, got %d", len(calls))
	}
	if calls[0].room != "thread:th-1" || calls[0].event != EventNewMessage {
		t.Fatalf("unexpected first emission %+v", calls[0])
	}
	if calls[1].room != "user:"+sellerID || calls[1].event != EventMessageReceived {
		t.Fatalf("unexpected second emission %+v", calls[1])
	}
	payload, ok := calls[1].data.(map[string]any)
	if !ok || payload["threadId"] != "th-1" {
		t.Fatalf("unexpected payload %#v", calls[1].data)
	}
	if m, ok := payload["message"].(view.Message); !ok || m.Sender.Name != "Buyer" {
		t.Fatalf("expected anonymized sender, got %#v", payload["message"])
	}
}

func TestHandle_BidAccepted(t *testing.T) {
	t.Parallel()

	d, em, hist := newTestDispatcher()
	listing := domain.Listing{ID: "l-1", SellerID: sellerID, Status: domain.ListingStatusReserved}
	accepted := domain.Bid{ID: "b-2", ListingID: "l-1", BidderID: buyerID, Amount: decimal.NewFromInt(48), Status: domain.BidStatusAccepted}
	declined := domain.Bid{ID: "b-1", ListingID: "l-1", BidderID: otherID, Amount: decimal.NewFromInt(45), Status: domain.BidStatusDeclined}
	txn := domain.Transaction{ID: "t-1", ListingID: "l-1", BidID: "b-2", SellerID: sellerID, BuyerID: buyerID, Value: decimal.NewFromInt(480), Stage: domain.StageNegotiation}

	d.handle(context.Background(), domain.BidAccepted{Bid: accepted, Listing: listing, Declined: []domain.Bid{declined}, Transaction: txn})

	want := []struct{ room, event string }{
		{"user:" + buyerID, EventBidUpdated},
		{"user:" + otherID, EventBidUpdated},
		{"user:" + buyerID, EventTransactionUpdated},
	}
	calls := em.snapshot()
	if len(calls) != len(want) {
		t.Fatalf("expected %d emissions, got %d", len(want), len(calls))
	}
	for i, w := range want {
		if calls[i].room != w.room || calls[i].event != w.event {
			t.Fatalf("emission %d: expected %s %s, got %s %s", i, w.room, w.event, calls[i].room, calls[i].event)
		}
	}

	if len(hist.changes) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(hist.changes))
	}
	listingChange := hist.changes[1]
	if listingChange.EntityKind != domain.RefListing || listingChange.From != "open" || listingChange.To != "reserved" {
		t.Fatalf("unexpected listing change %+v", listingChange)
	}
	for _, c := range hist.changes {
		if !c.At.Equal(testNow) || c.ActorID != sellerID {
			t.Fatalf("unexpected change metadata %+v", c)
		}
	}
}

func TestHandle_StageAdvancedNotifiesCounterparty(t *testing.T) {
	t.Parallel()

	d, em, hist := newTestDispatcher()
	txn := domain.Transaction{ID: "t-1", SellerID: sellerID, BuyerID: buyerID, Stage: domain.StageInTransit}

	d.handle(context.Background(), domain.StageAdvanced{Transaction: txn, From: domain.StageNegotiation, ActorID: sellerID})

	calls := em.snapshot()
	if len(calls) != 1 || calls[0].room != "user:"+buyerID || calls[0].event != EventTransactionUpdated {
		t.Fatalf("unexpected emissions %+v", calls)
	}
	got, ok := calls[0].data.(view.Transaction)
	if !ok || got.Counterpart != "Seller" || got.Stage != domain.StageInTransit {
		t.Fatalf("unexpected payload %#v", calls[0].data)
	}
	if len(hist.changes) != 1 || hist.changes[0].From != "negotiation" || hist.changes[0].To != "in-transit" {
		t.Fatalf("unexpected history %+v", hist.changes)
	}
}

func TestHandle_HistoryFailureDoesNotStopPushes(t *testing.T) {
	t.Parallel()

	d, em, hist := newTestDispatcher()
	hist.err = errors.New("mongo down")
	bid := domain.Bid{ID: "b-1", BidderID: buyerID, Status: domain.BidStatusPending}

	d.handle(context.Background(), domain.BidPlaced{Bid: bid, Listing: domain.Listing{ID: "l-1", SellerID: sellerID}})

	calls := em.snapshot()
	if len(calls) != 1 || calls[0].event != EventBidPlaced || calls[0].room != "user:"+sellerID {
		t.Fatalf("unexpected emissions %+v", calls)
	}
}

func TestHandle_NotificationCreated(t *testing.T) {
	t.Parallel()

	d, em, _ := newTestDispatcher()
	n := domain.Notification{ID: "n-1", RecipientID: buyerID, Type: domain.NotificationBid, Related: domain.BidRef("b-1")}

	d.handle(context.Background(), domain.NotificationCreated{Notification: n})

	calls := em.snapshot()
	if len(calls) != 1 || calls[0].event != EventNotification {
		t.Fatalf("unexpected emissions %+v", calls)
	}
	got := calls[0].data.(view.Notification)
	if got.Related == nil || got.Related.Kind != domain.RefBid {
		t.Fatalf("expected bid reference, got %+v", got.Related)
	}
}

func TestPublish_DropsWhenFull(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(WithBuffer(1))
	ev := domain.ThreadRead{Thread: domain.Thread{ID: "th-1"}, Reader: buyerID}

	d.Publish(context.Background(), ev)
	d.Publish(context.Background(), ev)

	if got := d.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped event, got %d", got)
	}
}

func TestRun_DrainsOnShutdown(t *testing.T) {
	t.Parallel()

	d, em, _ := newTestDispatcher(WithBuffer(8))
	for i := 0; i < 3; i++ {
		d.Publish(context.Background(), domain.ThreadRead{Thread: domain.Thread{ID: "th-1"}, Reader: buyerID})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := len(em.snapshot()); got != 3 {
		t.Fatalf("expected 3 emissions after drain, got %d", got)
	}
}

func TestRun_DeliversWhileRunning(t *testing.T) {
	t.Parallel()

	d, em, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Publish(context.Background(), domain.NotificationCreated{Notification: domain.Notification{ID: "n-1", RecipientID: buyerID}})

	deadline := time.Now().Add(2 * time.Second)
	for len(em.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for emission")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
