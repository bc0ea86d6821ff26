package app

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
)

type TransactionService struct {
	base
}

func NewTransactionService(repos Repositories, clk clock.Clock, opts ...Option) *TransactionService {
	return &TransactionService{base: newBase(repos, clk, opts)}
}

func (s *TransactionService) ListMine(ctx context.Context, actor domain.User) ([]domain.Transaction, error) {
	return s.repos.Transactions.ListTransactionsByParty(ctx, actor.ID)
}

func (s *TransactionService) Get(ctx context.Context, actor domain.User, id string) (domain.Transaction, error) {
	if !validID(id) {
		return domain.Transaction{}, domain.ErrInvalidID
	}
	txn, err := s.repos.Transactions.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !txn.HasParty(actor.ID) {
		return domain.Transaction{}, domain.ErrNotParty
	}
	return txn, nil
}

// AdvanceStage moves a transaction strictly forward and notifies the other
// party.
func (s *TransactionService) AdvanceStage(ctx context.Context, actor domain.User, id string, target domain.Stage) (domain.Transaction, error) {
	if !validID(id) {
		return domain.Transaction{}, domain.ErrInvalidID
	}
	if !target.Valid() {
		return domain.Transaction{}, domain.ErrInvalidStage
	}

	var (
		txn  domain.Transaction
		from domain.Stage
		note domain.Notification
	)
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		txn, err = s.repos.Transactions.GetTransactionForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !txn.HasParty(actor.ID) {
			return domain.ErrNotParty
		}
		if err := txn.Stage.CanAdvanceTo(target); err != nil {
			return err
		}

		from = txn.Stage
		txn.Stage = target
		txn.UpdatedAt = s.clock.Now()
		if err := s.repos.Transactions.UpdateTransactionStage(txCtx, txn.ID, txn.Stage, txn.UpdatedAt); err != nil {
			return err
		}

		title := txn.ListingTitle
		if title == "" {
			title = "listing"
		}
		note, err = s.notify(txCtx, txn.Counterparty(actor.ID), domain.NotificationSystem,
			"Transaction stage updated",
			fmt.Sprintf("Transaction for %s moved to %s.", title, target),
			domain.TransactionRef(txn.ID),
		)
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.publish(ctx,
		domain.StageAdvanced{Transaction: txn, From: from, ActorID: actor.ID},
		domain.NotificationCreated{Notification: note},
	)
	return txn, nil
}

// AttachDocument records a file name on the transaction. Attaching the same
// name twice is a no-op.
func (s *TransactionService) AttachDocument(ctx context.Context, actor domain.User, id, document string) (domain.Transaction, error) {
	if !validID(id) {
		return domain.Transaction{}, domain.ErrInvalidID
	}
	document = strings.TrimSpace(document)
	if !validDocumentName(document) {
		return domain.Transaction{}, domain.ErrInvalidDocument
	}

	var (
		txn   domain.Transaction
		added bool
	)
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		txn, err = s.repos.Transactions.GetTransactionForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !txn.HasParty(actor.ID) {
			return domain.ErrNotParty
		}
		if txn.HasDocument(document) {
			return nil
		}

		txn.Documents = append(txn.Documents, document)
		txn.UpdatedAt = s.clock.Now()
		added = true
		return s.repos.Transactions.AddTransactionDocument(txCtx, txn.ID, document, txn.UpdatedAt)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if added {
		s.publish(ctx, domain.DocumentAttached{Transaction: txn, Document: document, ActorID: actor.ID})
	}
	return txn, nil
}

// validDocumentName accepts a bare file name as handed out by the file store.
func validDocumentName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return false
	}
	return path.Base(name) == name
}
