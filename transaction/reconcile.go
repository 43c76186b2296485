package transaction

import (
	"context"
	"fmt"

	"github.com/kevinaaaquil/sharemybook/models"
)

// Records is the part of the local store that reconciliation writes to.
// Every write is keyed by uid, so applying the same outcome twice is harmless.
type Records interface {
	BookByUID(ctx context.Context, uid string) (*models.Book, error)
	UpsertBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, uid string) error
	UpsertUser(ctx context.Context, user *models.User) error
}

// Reconciler applies a confirmed transaction to the local library.
type Reconciler struct {
	Records Records
}

// Apply updates the library of self, who played side in tx. bookUID is the
// local book an initiator started from; acceptors take the uid from tx.
func (r Reconciler) Apply(ctx context.Context, side Side, self *models.User, bookUID string, tx *models.Transaction) error {
	var err error
	switch side {
	case SideAcceptor:
		err = r.accepted(ctx, self, tx)
	case SideInitiator:
		err = r.initiated(ctx, self, bookUID, tx)
	default:
		err = fmt.Errorf("unknown side %d", side)
	}
	if err != nil {
		return &ReconcileError{Side: side, Err: err}
	}
	return nil
}

func (r Reconciler) accepted(ctx context.Context, self *models.User, tx *models.Transaction) error {
	switch tx.Action {
	case models.ActionLoan:
		book := &models.Book{
			UID:       tx.Book.UID,
			ISBN:      tx.Book.ISBN,
			Title:     tx.Book.Title,
			Authors:   tx.Book.Authors,
			CoverURL:  tx.Book.Covers,
			OwnerUUID: tx.Owner.UID,
		}
		book.LendTo(self.UID)
		if err := r.Records.UpsertBook(ctx, book); err != nil {
			return fmt.Errorf("save borrowed book: %w", err)
		}
	case models.ActionReturn:
		if err := r.Records.DeleteBook(ctx, tx.Book.UID); err != nil {
			return fmt.Errorf("remove returned book: %w", err)
		}
	default:
		return fmt.Errorf("unknown action %q", tx.Action)
	}
	return r.saveContact(ctx, self, tx.Owner)
}

func (r Reconciler) initiated(ctx context.Context, self *models.User, bookUID string, tx *models.Transaction) error {
	if tx.Borrower == nil {
		return ErrBorrowerMissing
	}
	book, err := r.Records.BookByUID(ctx, bookUID)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}
	if book == nil {
		return ErrBookMissing
	}
	switch tx.Action {
	case models.ActionLoan:
		book.LendTo(tx.Borrower.UID)
	case models.ActionReturn:
		book.LendTo("")
	default:
		return fmt.Errorf("unknown action %q", tx.Action)
	}
	if err := r.Records.UpsertBook(ctx, book); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return r.saveContact(ctx, self, *tx.Borrower)
}

// saveContact records the other party. The device owner is never written as
// a contact, since that would demote them.
func (r Reconciler) saveContact(ctx context.Context, self *models.User, ref models.TransactionUser) error {
	if ref.UID == "" || ref.UID == self.UID {
		return nil
	}
	if err := r.Records.UpsertUser(ctx, models.Contact(ref)); err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	return nil
}
