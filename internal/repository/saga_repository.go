package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/travel-booking/internal/model"
)

const sagaCols = `id, correlation_id, user_id, last_name, flight_ids, hotel_legs, status, provider_reference,
	provider_payload, booking_id, last_error, attempts, created_at, updated_at`

func (s *Store) CreateSaga(ctx context.Context, sg *model.FlightSaga) error {
	const q = `INSERT INTO flight_sagas
		(correlation_id, user_id, last_name, flight_ids, hotel_legs, status, provider_reference,
		 provider_payload, booking_id, last_error, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	created := now()
	result, err := s.db.ExecContext(ctx, q, sg.CorrelationID, sg.UserID, sg.LastName, sg.FlightIDs, sg.HotelLegs,
		sg.Status, sg.ProviderReference, sg.ProviderPayload, sg.BookingID, sg.LastError, sg.Attempts, created, created)
	if err != nil {
		return translate(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	sg.ID, sg.CreatedAt, sg.UpdatedAt = uint64(id), created, created
	return nil
}

// UpdateSaga writes the mutable columns of the saga and stamps updated_at.
func (s *Store) UpdateSaga(ctx context.Context, sg *model.FlightSaga) error {
	const q = `UPDATE flight_sagas SET status = ?, provider_reference = ?, provider_payload = ?, booking_id = ?,
		last_error = ?, attempts = ?, updated_at = ? WHERE id = ?`
	updated := now()
	res, err := s.db.ExecContext(ctx, q, sg.Status, sg.ProviderReference, sg.ProviderPayload, sg.BookingID,
		sg.LastError, sg.Attempts, updated, sg.ID)
	if err := affected(res, err); err != nil {
		return err
	}
	sg.UpdatedAt = updated
	return nil
}

func (s *Store) GetSaga(ctx context.Context, id uint64) (model.FlightSaga, error) {
	var sg model.FlightSaga
	err := sqlx.GetContext(ctx, s.db, &sg, `SELECT `+sagaCols+` FROM flight_sagas WHERE id = ?`, id)
	return sg, translate(err)
}

// ListSagas returns up to limit sagas in the given statuses last touched
// before updatedBefore, oldest first.  limit <= 0 means no limit.
func (s *Store) ListSagas(ctx context.Context, statuses []string, updatedBefore time.Time, limit int) ([]model.FlightSaga, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + sagaCols + ` FROM flight_sagas WHERE status IN (?) AND updated_at < ? ORDER BY updated_at, id`
	args := []interface{}{statuses, updatedBefore}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	q, qargs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	var out []model.FlightSaga
	err = sqlx.SelectContext(ctx, s.db, &out, s.db.Rebind(q), qargs...)
	return out, translate(err)
}
