// Package view renders domain records as the JSON shapes served over HTTP
// and pushed over the realtime bus. Rendering is per viewer: callers other
// than the party itself or an admin see role labels instead of company
// names.
package view

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tuniwaste/exchange/internal/domain"
	"github.com/tuniwaste/exchange/internal/files"
)

// Directory resolves known users for admin views.
type Directory interface {
	Lookup(ctx context.Context, id string) (domain.User, error)
}

// Nobody is the viewer used for frames shared by a whole room.
var Nobody = domain.User{}

type Renderer struct {
	files  files.Resolver
	users  Directory
	logger *slog.Logger
}

// NewRenderer builds a renderer. Both res and users may be nil: names are
// then served as stored and admins see role labels.
func NewRenderer(res files.Resolver, users Directory, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{files: res, users: users, logger: logger}
}

type Party struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

type Document struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

func (r *Renderer) party(ctx context.Context, viewer domain.User, id string, role domain.Role) Party {
	p := Party{ID: id, Name: role.Label(), Role: role}
	switch {
	case id == viewer.ID && viewer.ID != "":
		if viewer.Company != "" {
			p.Name = viewer.Company
		}
	case viewer.IsAdmin() && r.users != nil:
		u, err := r.users.Lookup(ctx, id)
		if err != nil {
			r.logger.Debug("party lookup failed", "user_id", id, "error", err)
			break
		}
		if u.Company != "" {
			p.Name = u.Company
		}
	}
	return p
}

func (r *Renderer) documents(ctx context.Context, names []string) []Document {
	out := make([]Document, 0, len(names))
	for _, name := range names {
		out = append(out, r.document(ctx, name))
	}
	return out
}

func (r *Renderer) document(ctx context.Context, name string) Document {
	d := Document{Name: name}
	if r.files == nil {
		return d
	}
	u, err := r.files.URL(ctx, name)
	if err != nil {
		r.logger.Warn("resolve file url", "name", name, "error", err)
		return d
	}
	d.URL = u
	return d
}

type Listing struct {
	ID                 string               `json:"id"`
	Seller             Party                `json:"seller"`
	Title              string               `json:"title"`
	Material           string               `json:"material"`
	Category           domain.Category      `json:"category"`
	QuantityTons       decimal.Decimal      `json:"quantityTons"`
	PricePerTon        decimal.Decimal      `json:"pricePerTon"`
	Location           string               `json:"location"`
	Coords             domain.Coords        `json:"coords"`
	Certifications     []string             `json:"certifications"`
	AvailableFrom      *time.Time           `json:"availableFrom,omitempty"`
	ExpiresOn          *time.Time           `json:"expiresOn,omitempty"`
	PickupRequirements string               `json:"pickupRequirements,omitempty"`
	Documents          []Document           `json:"documents"`
	Thumbnail          *Document            `json:"thumbnail,omitempty"`
	Status             domain.ListingStatus `json:"status"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

func (r *Renderer) Listing(ctx context.Context, viewer domain.User, l domain.Listing) Listing {
	out := Listing{
		ID:                 l.ID,
		Seller:             r.party(ctx, viewer, l.SellerID, domain.RoleGenerator),
		Title:              l.Title,
		Material:           l.Material,
		Category:           l.Category,
		QuantityTons:       l.QuantityTons,
		PricePerTon:        l.PricePerTon,
		Location:           l.Location,
		Coords:             l.Coords,
		Certifications:     nonNil(l.Certifications),
		AvailableFrom:      optionalTime(l.AvailableFrom),
		ExpiresOn:          optionalTime(l.ExpiresOn),
		PickupRequirements: l.PickupRequirements,
		Documents:          r.documents(ctx, l.Documents),
		Status:             l.Status,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
	if l.Thumbnail != "" {
		thumb := r.document(ctx, l.Thumbnail)
		out.Thumbnail = &thumb
	}
	return out
}

func (r *Renderer) Listings(ctx context.Context, viewer domain.User, in []domain.Listing) []Listing {
	out := make([]Listing, 0, len(in))
	for _, l := range in {
		out = append(out, r.Listing(ctx, viewer, l))
	}
	return out
}

type Bid struct {
	ID        string           `json:"id"`
	ListingID string           `json:"listingId"`
	Bidder    Party            `json:"bidder"`
	Amount    decimal.Decimal  `json:"amount"`
	Status    domain.BidStatus `json:"status"`
	PlacedAt  time.Time        `json:"timestamp"`
}

func (r *Renderer) Bid(ctx context.Context, viewer domain.User, b domain.Bid) Bid {
	return Bid{
		ID:        b.ID,
		ListingID: b.ListingID,
		Bidder:    r.party(ctx, viewer, b.BidderID, domain.RoleBuyer),
		Amount:    b.Amount,
		Status:    b.Status,
		PlacedAt:  b.PlacedAt,
	}
}

func (r *Renderer) Bids(ctx context.Context, viewer domain.User, in []domain.Bid) []Bid {
	out := make([]Bid, 0, len(in))
	for _, b := range in {
		out = append(out, r.Bid(ctx, viewer, b))
	}
	return out
}

type Transaction struct {
	ID           string          `json:"id"`
	ListingID    string          `json:"listingId"`
	ListingTitle string          `json:"listingTitle,omitempty"`
	BidID        string          `json:"bidId"`
	Seller       Party           `json:"seller"`
	Buyer        Party           `json:"buyer"`
	Counterpart  string          `json:"counterpart,omitempty"`
	Value        decimal.Decimal `json:"value"`
	Stage        domain.Stage    `json:"stage"`
	Documents    []Document      `json:"documents"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (r *Renderer) Transaction(ctx context.Context, viewer domain.User, t domain.Transaction) Transaction {
	out := Transaction{
		ID:           t.ID,
		ListingID:    t.ListingID,
		ListingTitle: t.ListingTitle,
		BidID:        t.BidID,
		Seller:       r.party(ctx, viewer, t.SellerID, domain.RoleGenerator),
		Buyer:        r.party(ctx, viewer, t.BuyerID, domain.RoleBuyer),
		Value:        t.Value,
		Stage:        t.Stage,
		Documents:    r.documents(ctx, t.Documents),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	switch viewer.ID {
	case t.SellerID:
		out.Counterpart = out.Buyer.Name
	case t.BuyerID:
		out.Counterpart = out.Seller.Name
	}
	return out
}

func (r *Renderer) Transactions(ctx context.Context, viewer domain.User, in []domain.Transaction) []Transaction {
	out := make([]Transaction, 0, len(in))
	for _, t := range in {
		out = append(out, r.Transaction(ctx, viewer, t))
	}
	return out
}

type Thread struct {
	ID            string     `json:"id"`
	Participants  [2]string  `json:"participants"`
	ListingID     string     `json:"listingId,omitempty"`
	LastMessage   string     `json:"lastMessage"`
	LastTimestamp *time.Time `json:"lastTimestamp,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (r *Renderer) Thread(t domain.Thread) Thread {
	return Thread{
		ID:            t.ID,
		Participants:  t.Participants,
		ListingID:     t.ListingID,
		LastMessage:   t.LastMessage,
		LastTimestamp: optionalTime(t.LastMessageAt),
		CreatedAt:     t.CreatedAt,
	}
}

type ThreadSummary struct {
	ID            string      `json:"id"`
	Counterpart   string      `json:"counterpart"`
	CounterpartID string      `json:"counterpartId"`
	Role          domain.Role `json:"role"`
	ListingID     string      `json:"listingId,omitempty"`
	ListingTitle  string      `json:"listingTitle,omitempty"`
	Unread        int         `json:"unread"`
	LastMessage   string      `json:"lastMessage"`
	LastTimestamp *time.Time  `json:"lastTimestamp,omitempty"`
}

func (r *Renderer) ThreadSummaries(viewer domain.User, in []domain.ThreadSummary) []ThreadSummary {
	out := make([]ThreadSummary, 0, len(in))
	for _, s := range in {
		name := s.Counterpart.Role.Label()
		if viewer.IsAdmin() {
			name = s.Counterpart.Company
			if name == "" {
				name = "User"
			}
		}
		out = append(out, ThreadSummary{
			ID:            s.Thread.ID,
			Counterpart:   name,
			CounterpartID: s.Counterpart.ID,
			Role:          s.Counterpart.Role,
			ListingID:     s.Thread.ListingID,
			ListingTitle:  s.ListingTitle,
			Unread:        s.Unread,
			LastMessage:   s.Thread.LastMessage,
			LastTimestamp: optionalTime(s.Thread.LastMessageAt),
		})
	}
	return out
}

type Message struct {
	ID          string     `json:"id"`
	ThreadID    string     `json:"threadId"`
	Sender      Party      `json:"sender"`
	Body        string     `json:"body"`
	Attachments []Document `json:"attachments"`
	ReadBy      []string   `json:"readBy"`
	Timestamp   time.Time  `json:"timestamp"`
}

func (r *Renderer) Message(ctx context.Context, viewer domain.User, m domain.Message) Message {
	return Message{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		Sender:      r.party(ctx, viewer, m.SenderID, m.SenderRole),
		Body:        m.Body,
		Attachments: r.documents(ctx, m.Attachments),
		ReadBy:      nonNil(m.ReadBy),
		Timestamp:   m.SentAt,
	}
}

func (r *Renderer) Messages(ctx context.Context, viewer domain.User, in []domain.Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		out = append(out, r.Message(ctx, viewer, m))
	}
	return out
}

type Related struct {
	Kind domain.RefKind `json:"kind"`
	ID   string         `json:"id"`
}

type Notification struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Detail    string                  `json:"detail"`
	Related   *Related                `json:"related,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"createdAt"`
}

func NewNotification(n domain.Notification) Notification {
	out := Notification{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Detail:    n.Detail,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
	if n.Related.Kind != domain.RefNone {
		out.Related = &Related{Kind: n.Related.Kind, ID: n.Related.ID}
	}
	return out
}

func NewNotifications(in []domain.Notification) []Notification {
	out := make([]Notification, 0, len(in))
	for _, n := range in {
		out = append(out, NewNotification(n))
	}
	return out
}

// StatusChange is one entry of an entity's status trail, shown to admins.
type StatusChange struct {
	Kind    domain.RefKind `json:"kind"`
	ID      string         `json:"id"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to"`
	ActorID string         `json:"actorId,omitempty"`
	Note    string         `json:"note,omitempty"`
	At      time.Time      `json:"at"`
}

func NewStatusChanges(in []domain.StatusChange) []StatusChange {
	out := make([]StatusChange, 0, len(in))
	for _, c := range in {
		out = append(out, StatusChange{
			Kind:    c.EntityKind,
			ID:      c.EntityID,
			From:    c.From,
			To:      c.To,
			ActorID: c.ActorID,
			Note:    c.Note,
			At:      c.At,
		})
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
