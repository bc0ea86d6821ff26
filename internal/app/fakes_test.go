package app

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tuniwaste/exchange/internal/domain"
)

// memStore is an in-memory implementation of every repository. WithTx
// serialises transactions and restores a snapshot when fn fails, which is
// enough to mirror the row locks and rollback of the Postgres store.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users         map[string]domain.User
	listings      map[string]domain.Listing
	bids          map[string]domain.Bid
	transactions  map[string]domain.Transaction
	threads       map[string]domain.Thread
	messages      map[string]domain.Message
	notifications map[string]domain.Notification
	// msgSeq breaks ties between messages sent at the same instant.
	msgSeq map[string]int

	// failOn makes the named method return the error once.
	failOn map[string]error
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]domain.User{},
		listings:      map[string]domain.Listing{},
		bids:          map[string]domain.Bid{},
		transactions:  map[string]domain.Transaction{},
		threads:       map[string]domain.Thread{},
		messages:      map[string]domain.Message{},
		notifications: map[string]domain.Notification{},
		msgSeq:        map[string]int{},
		failOn:        map[string]error{},
	}
}

func (m *memStore) repos() Repositories {
	return Repositories{
		Tx:            m,
		Users:         m,
		Listings:      m,
		Bids:          m,
		Transactions:  m,
		Threads:       m,
		Messages:      m,
		Notifications: m,
	}
}

type memSnapshot struct {
	users         map[string]domain.User
	listings      map[string]domain.Listing
	bids          map[string]domain.Bid
	transactions  map[string]domain.Transaction
	threads       map[string]domain.Thread
	messages      map[string]domain.Message
	notifications map[string]domain.Notification
	msgSeq        map[string]int
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memSnapshot{
		users:         maps.Clone(m.users),
		listings:      maps.Clone(m.listings),
		bids:          maps.Clone(m.bids),
		transactions:  maps.Clone(m.transactions),
		threads:       maps.Clone(m.threads),
		messages:      maps.Clone(m.messages),
		notifications: maps.Clone(m.notifications),
		msgSeq:        maps.Clone(m.msgSeq),
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = s.users
	m.listings = s.listings
	m.bids = s.bids
	m.transactions = s.transactions
	m.threads = s.threads
	m.messages = s.messages
	m.notifications = s.notifications
	m.msgSeq = s.msgSeq
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) fail(method string) error {
	if err, ok := m.failOn[method]; ok {
		delete(m.failOn, method)
		return err
	}
	return nil
}

// --- users ---

func (m *memStore) UpsertUser(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

// --- listings ---

func (m *memStore) CreateListing(_ context.Context, l domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateListing"); err != nil {
		return err
	}
	m.listings[l.ID] = l
	return nil
}

func (m *memStore) GetListing(_ context.Context, id string) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return l, nil
}

func (m *memStore) GetListingForUpdate(ctx context.Context, id string) (domain.Listing, error) {
	return m.GetListing(ctx, id)
}

func (m *memStore) UpdateListing(_ context.Context, l domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[l.ID]; !ok {
		return domain.ErrListingNotFound
	}
	m.listings[l.ID] = l
	return nil
}

func (m *memStore) SetListingStatus(_ context.Context, id string, status domain.ListingStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SetListingStatus"); err != nil {
		return err
	}
	l, ok := m.listings[id]
	if !ok {
		return domain.ErrListingNotFound
	}
	l.Status = status
	l.UpdatedAt = at
	m.listings[id] = l
	return nil
}

func (m *memStore) DeleteListing(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[id]; !ok {
		return domain.ErrListingNotFound
	}
	delete(m.listings, id)
	for bidID, b := range m.bids {
		if b.ListingID == id {
			delete(m.bids, bidID)
		}
	}
	return nil
}

func (m *memStore) ListListings(_ context.Context, f domain.ListingFilter) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Listing
	for _, l := range m.listings {
		if f.SellerID != "" && l.SellerID != f.SellerID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.Location != "" && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.Location)) {
			continue
		}
		if f.MinQuantity != nil && l.QuantityTons.LessThan(*f.MinQuantity) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- bids ---

func (m *memStore) CreateBid(_ context.Context, b domain.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids[b.ID] = b
	return nil
}

func (m *memStore) GetBid(_ context.Context, id string) (domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return domain.Bid{}, domain.ErrBidNotFound
	}
	return b, nil
}

func (m *memStore) GetBidForUpdate(ctx context.Context, id string) (domain.Bid, error) {
	return m.GetBid(ctx, id)
}

func (m *memStore) SetBidStatus(_ context.Context, id string, status domain.BidStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return domain.ErrBidNotFound
	}
	if status == domain.BidStatusAccepted {
		for _, other := range m.bids {
			if other.ListingID == b.ListingID && other.ID != id && other.Status == domain.BidStatusAccepted {
				return domain.ErrBidAlreadyAccepted
			}
		}
	}
	b.Status = status
	m.bids[id] = b
	return nil
}

func (m *memStore) DeclinePendingBids(_ context.Context, listingID, exceptBidID string) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var declined []domain.Bid
	for id, b := range m.bids {
		if b.ListingID != listingID || id == exceptBidID || b.Status != domain.BidStatusPending {
			continue
		}
		b.Status = domain.BidStatusDeclined
		m.bids[id] = b
		declined = append(declined, b)
	}
	return declined, nil
}

func (m *memStore) listBids(keep func(domain.Bid) bool) []domain.Bid {
	var out []domain.Bid
	for _, b := range m.bids {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return out
}

func (m *memStore) ListBidsByListing(_ context.Context, listingID string) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listBids(func(b domain.Bid) bool { return b.ListingID == listingID }), nil
}

func (m *memStore) ListBidsByBidder(_ context.Context, bidderID string) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listBids(func(b domain.Bid) bool { return b.BidderID == bidderID }), nil
}

func (m *memStore) ListBidsBySeller(_ context.Context, sellerID string) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listBids(func(b domain.Bid) bool { return m.listings[b.ListingID].SellerID == sellerID }), nil
}

// --- transactions ---

func (m *memStore) CreateTransaction(_ context.Context, t domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateTransaction"); err != nil {
		return err
	}
	for _, existing := range m.transactions {
		if existing.BidID == t.BidID {
			return domain.ErrTransactionExists
		}
	}
	t.Documents = slices.Clone(t.Documents)
	m.transactions[t.ID] = t
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, id string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	t.Documents = slices.Clone(t.Documents)
	t.ListingTitle = m.listings[t.ListingID].Title
	return t, nil
}

func (m *memStore) GetTransactionForUpdate(ctx context.Context, id string) (domain.Transaction, error) {
	return m.GetTransaction(ctx, id)
}

func (m *memStore) UpdateTransactionStage(_ context.Context, id string, stage domain.Stage, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	t.Stage = stage
	t.UpdatedAt = at
	m.transactions[id] = t
	return nil
}

func (m *memStore) AddTransactionDocument(_ context.Context, id, document string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if !slices.Contains(t.Documents, document) {
		t.Documents = append(slices.Clone(t.Documents), document)
	}
	t.UpdatedAt = at
	m.transactions[id] = t
	return nil
}

func (m *memStore) ListTransactionsByParty(_ context.Context, userID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.transactions {
		if t.HasParty(userID) {
			t.ListingTitle = m.listings[t.ListingID].Title
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- threads ---

func (m *memStore) FindOrCreateThread(_ context.Context, t domain.Thread) (domain.Thread, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := domain.OrderedPair(t.Participants[0], t.Participants[1])
	for _, existing := range m.threads {
		if existing.Participants == pair && existing.ListingID == t.ListingID {
			return existing, false, nil
		}
	}
	t.Participants = pair
	m.threads[t.ID] = t
	return t, true, nil
}

func (m *memStore) GetThread(_ context.Context, id string) (domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return domain.Thread{}, domain.ErrThreadNotFound
	}
	return t, nil
}

func (m *memStore) GetThreadForUpdate(ctx context.Context, id string) (domain.Thread, error) {
	return m.GetThread(ctx, id)
}

func (m *memStore) UpdateThreadPreview(_ context.Context, id, preview string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return domain.ErrThreadNotFound
	}
	t.LastMessage = preview
	t.LastMessageAt = at
	m.threads[id] = t
	return nil
}

func (m *memStore) ListThreadSummaries(_ context.Context, userID string) ([]domain.ThreadSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ThreadSummary
	for _, t := range m.threads {
		if !t.HasParticipant(userID) {
			continue
		}
		unread := 0
		for _, msg := range m.messages {
			if msg.ThreadID == t.ID && msg.SenderID != userID && !slices.Contains(msg.ReadBy, userID) {
				unread++
			}
		}
		out = append(out, domain.ThreadSummary{
			Thread:       t,
			Unread:       unread,
			Counterpart:  m.users[t.Other(userID)],
			ListingTitle: m.listings[t.ListingID].Title,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Thread.LastMessageAt.After(out[j].Thread.LastMessageAt) })
	return out, nil
}

// --- messages ---

func (m *memStore) CreateMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateMessage"); err != nil {
		return err
	}
	msg.ReadBy = slices.Clone(msg.ReadBy)
	m.messages[msg.ID] = msg
	m.msgSeq[msg.ID] = len(m.msgSeq)
	return nil
}

func (m *memStore) GetMessage(_ context.Context, id string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	msg.ReadBy = slices.Clone(msg.ReadBy)
	return msg, nil
}

func (m *memStore) ListMessages(_ context.Context, threadID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.ThreadID == threadID {
			msg.ReadBy = slices.Clone(msg.ReadBy)
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return m.msgSeq[out[i].ID] < m.msgSeq[out[j].ID]
	})
	return out, nil
}

func (m *memStore) AddReader(_ context.Context, messageID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return domain.ErrMessageNotFound
	}
	if !slices.Contains(msg.ReadBy, userID) {
		msg.ReadBy = append(slices.Clone(msg.ReadBy), userID)
		m.messages[messageID] = msg
	}
	return nil
}

func (m *memStore) MarkThreadRead(_ context.Context, threadID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, msg := range m.messages {
		if msg.ThreadID != threadID || msg.SenderID == userID || slices.Contains(msg.ReadBy, userID) {
			continue
		}
		msg.ReadBy = append(slices.Clone(msg.ReadBy), userID)
		m.messages[id] = msg
		n++
	}
	return n, nil
}

// --- notifications ---

func (m *memStore) CreateNotification(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateNotification"); err != nil {
		return err
	}
	if _, ok := m.users[n.RecipientID]; !ok {
		return domain.ErrUserNotFound
	}
	m.notifications[n.ID] = n
	return nil
}

func (m *memStore) GetNotification(_ context.Context, id string) (domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.Notification{}, domain.ErrNotificationNotFound
	}
	return n, nil
}

func (m *memStore) ListNotifications(_ context.Context, recipientID string, limit, offset int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Notification
	for _, n := range m.notifications {
		if n.RecipientID == recipientID {
			all = append(all, n)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (m *memStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, note := range m.notifications {
		if note.RecipientID == recipientID && !note.Read {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	n.Read = true
	m.notifications[id] = n
	return nil
}

func (m *memStore) MarkAllNotificationsRead(_ context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, n := range m.notifications {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			m.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (m *memStore) DeleteNotification(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[id]; !ok {
		return domain.ErrNotificationNotFound
	}
	delete(m.notifications, id)
	return nil
}

// --- helpers ---

func (m *memStore) notificationsFor(userID string) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.notifications {
		if n.RecipientID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventName())
	}
	return out
}
