package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/travel-booking/internal/model"
)

// GetUser looks up a user by id.  ErrNotFound when the user does not exist.
func (r queries) GetUser(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, r.q, &u, `SELECT id, email, first_name, last_name, created_at FROM users WHERE id = ?`, id)
	return u, translate(err)
}

func (r queries) CreateNotification(ctx context.Context, n *model.Notification) error {
	created := now()
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO notifications (user_id, kind, message, is_read, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.UserID, n.Kind, n.Message, n.IsRead, created)
	if err != nil {
		return translate(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	n.ID, n.CreatedAt = uint64(id), created
	return nil
}

func (r queries) GetInvoiceByBooking(ctx context.Context, bookingID uint64) (model.Invoice, error) {
	var inv model.Invoice
	err := sqlx.GetContext(ctx, r.q, &inv,
		`SELECT id, booking_id, number, amount_cents, currency, document, created_at FROM invoices WHERE booking_id = ?`, bookingID)
	return inv, translate(err)
}

// CreateInvoice inserts the invoice.  The unique key on booking_id turns a
// second insert into ErrDuplicate.
func (s *Store) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	created := now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices (booking_id, number, amount_cents, currency, document, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		inv.BookingID, inv.Number, inv.AmountCents, inv.Currency, inv.Document, created)
	if err != nil {
		return translate(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID, inv.CreatedAt = uint64(id), created
	return nil
}
