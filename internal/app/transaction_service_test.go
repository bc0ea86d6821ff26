package app

import (
	"context"
	"errors"
	"testing"

	"github.com/tuniwaste/exchange/internal/domain"
)

func acceptedTransaction(t *testing.T, f *fixture) domain.Transaction {
	t.Helper()
	l := f.listing(t, "HDPE regrind", 10)
	b := f.bid(t, f.buyer, l.ID, "48")
	res, err := f.bids.Accept(context.Background(), f.seller, b.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return res.Transaction
}

func TestTransactionService_AdvanceStage(t *testing.T) {
	t.Parallel()

	t.Run("either party advances and the other is notified", func(t *testing.T) {
		for _, who := range []string{"seller", "buyer"} {
			t.Run(who, func(t *testing.T) {
				f := newFixture(t)
				txn := acceptedTransaction(t, f)
				actor, other := f.seller, f.buyer
				if who == "buyer" {
					actor, other = f.buyer, f.seller
				}
				before := len(f.store.notificationsFor(other.ID))

				got, err := f.transactions.AdvanceStage(context.Background(), actor, txn.ID, domain.StageInTransit)
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if got.Stage != domain.StageInTransit {
					t.Fatalf("expected in-transit, got %s", got.Stage)
				}
				notes := f.store.notificationsFor(other.ID)
				if len(notes) != before+1 {
					t.Fatalf("expected a new notification for the other party")
				}
				last := notes[len(notes)-1]
				if last.Type != domain.NotificationSystem || last.Related != domain.TransactionRef(txn.ID) {
					t.Fatalf("unexpected notification %+v", last)
				}
			})
		}
	})

	t.Run("third user is forbidden", func(t *testing.T) {
		f := newFixture(t)
		txn := acceptedTransaction(t, f)
		_, err := f.transactions.AdvanceStage(context.Background(), f.buyer2, txn.ID, domain.StageInTransit)
		if !errors.Is(err, domain.ErrNotParty) {
			t.Fatalf("expected ErrNotParty, got %v", err)
		}
		if domain.KindOf(err) != domain.KindForbidden {
			t.Fatalf("expected forbidden kind, got %s", domain.KindOf(err))
		}
	})

	cases := []struct {
		name    string
		path    []domain.Stage
		target  domain.Stage
		wantErr error
	}{
		{name: "unknown stage", target: "shipped", wantErr: domain.ErrInvalidStage},
		{name: "same stage", target: domain.StageNegotiation, wantErr: domain.ErrStageNotForward},
		{name: "backwards", path: []domain.Stage{domain.StageInTransit}, target: domain.StageNegotiation, wantErr: domain.ErrStageNotForward},
		{name: "after delivery", path: []domain.Stage{domain.StageInTransit, domain.StageDelivered}, target: domain.StageInTransit, wantErr: domain.ErrTransactionDelivered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			txn := acceptedTransaction(t, f)
			for _, s := range tc.path {
				if _, err := f.transactions.AdvanceStage(context.Background(), f.seller, txn.ID, s); err != nil {
					t.Fatalf("advance to %s: %v", s, err)
				}
			}
			_, err := f.transactions.AdvanceStage(context.Background(), f.seller, txn.ID, tc.target)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	t.Run("skipping in-transit is allowed", func(t *testing.T) {
		f := newFixture(t)
		txn := acceptedTransaction(t, f)
		if _, err := f.transactions.AdvanceStage(context.Background(), f.buyer, txn.ID, domain.StageDelivered); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestTransactionService_AttachDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	txn := acceptedTransaction(t, f)

	got, err := f.transactions.AttachDocument(context.Background(), f.seller, txn.ID, "invoice-001.pdf")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got.Documents) != 1 {
		t.Fatalf("expected one document, got %v", got.Documents)
	}

	got, err = f.transactions.AttachDocument(context.Background(), f.buyer, txn.ID, "invoice-001.pdf")
	if err != nil {
		t.Fatalf("expected idempotent attach, got %v", err)
	}
	if len(got.Documents) != 1 {
		t.Fatalf("expected document list unchanged, got %v", got.Documents)
	}

	for _, bad := range []string{"", "../etc/passwd", "a/b.pdf", ".."} {
		if _, err := f.transactions.AttachDocument(context.Background(), f.seller, txn.ID, bad); !errors.Is(err, domain.ErrInvalidDocument) {
			t.Fatalf("expected ErrInvalidDocument for %q, got %v", bad, err)
		}
	}
	if _, err := f.transactions.AttachDocument(context.Background(), f.buyer2, txn.ID, "x.pdf"); !errors.Is(err, domain.ErrNotParty) {
		t.Fatalf("expected ErrNotParty, got %v", err)
	}
}

func TestTransactionService_Get(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	txn := acceptedTransaction(t, f)

	got, err := f.transactions.Get(context.Background(), f.buyer, txn.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ListingTitle != "HDPE regrind" {
		t.Fatalf("expected listing title, got %q", got.ListingTitle)
	}
	if _, err := f.transactions.Get(context.Background(), f.buyer2, txn.ID); !errors.Is(err, domain.ErrNotParty) {
		t.Fatalf("expected ErrNotParty, got %v", err)
	}
	if _, err := f.transactions.Get(context.Background(), f.buyer, newID()); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}

	mine, err := f.transactions.ListMine(context.Background(), f.seller)
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected one transaction, got %d err=%v", len(mine), err)
	}
	none, _ := f.transactions.ListMine(context.Background(), f.buyer2)
	if len(none) != 0 {
		t.Fatalf("expected none for third party, got %d", len(none))
	}
}
