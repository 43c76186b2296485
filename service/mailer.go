package service

import (
	"context"
	"fmt"
	"strings"

	mail "github.com/go-mail/mail/v2"
	"github.com/kevinaaaquil/sharemybook/models"
)

// Mailer sends a receipt to the other party once a transaction is confirmed.
type Mailer struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (m *Mailer) Enabled() bool {
	return m != nil && m.Host != "" && m.From != ""
}

// ReceiptBody is the plain-text receipt for tx as seen by self.
func ReceiptBody(tx *models.Transaction, self models.TransactionUser) string {
	var b strings.Builder
	verb := "lent"
	if tx.Action == models.ActionReturn {
		verb = "returned"
	}
	fmt.Fprintf(&b, "%q by %s was %s.\n\n", tx.Book.Title, tx.Book.Authors, verb)
	fmt.Fprintf(&b, "Owner:    %s <%s> %s\n", tx.Owner.FullName, tx.Owner.Email, tx.Owner.Tel)
	if tx.Borrower != nil {
		fmt.Fprintf(&b, "Borrower: %s <%s> %s\n", tx.Borrower.FullName, tx.Borrower.Email, tx.Borrower.Tel)
	}
	if tx.Book.ISBN != "" {
		fmt.Fprintf(&b, "ISBN:     %s\n", tx.Book.ISBN)
	}
	fmt.Fprintf(&b, "\nRecorded on %s's device.\n", self.FullName)
	return b.String()
}

// SendReceipt mails a receipt to the counterpart of self in tx. The dialer has
// no context support; ctx is only checked before dialing.
func (m *Mailer) SendReceipt(ctx context.Context, tx *models.Transaction, self models.TransactionUser) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := tx.Owner
	if to.UID == self.UID && tx.Borrower != nil {
		to = *tx.Borrower
	}
	if to.Email == "" || to.UID == self.UID {
		return nil
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to.Email)
	msg.SetHeader("Subject", "ShareMyBook: "+tx.Book.Title)
	msg.SetBody("text/plain", ReceiptBody(tx, self))

	d := mail.NewDialer(m.Host, m.Port, m.User, m.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}
	return nil
}
