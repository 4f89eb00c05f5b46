package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
)

const confirmedSlotConstraint = "uq_bookings_confirmed_slot"

const bookingColumns = `
	id, service_id, service_title, service_price_pence, location_id, location_name,
	to_char(booking_date, 'YYYY-MM-DD') AS booking_date, slot_time,
	first_name, last_name, email, phone, date_of_birth, postcode,
	license_number, employer, vehicle_type, hear_about_us, marketing_consent,
	voucher_code, discount_pence, amount_pence, status, payment_status, payment_method,
	payment_intent_id, is_placeholder, admin_notes, created_at, updated_at`

func (r *bookingRepository) Create(ctx context.Context, b *model.Booking, event *model.OutboxEvent) error {
	query := `
		INSERT INTO bookings (
			id, service_id, service_title, service_price_pence, location_id, location_name,
			booking_date, slot_time, first_name, last_name, email, phone, date_of_birth,
			postcode, license_number, employer, vehicle_type, hear_about_us, marketing_consent,
			voucher_code, discount_pence, amount_pence, status, payment_status, payment_method,
			payment_intent_id, is_placeholder, admin_notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30
		)
	`
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			b.ID, b.ServiceID, b.ServiceTitle, b.ServicePricePence, b.LocationID, b.LocationName,
			b.Date, b.Time, b.FirstName, b.LastName, b.Email, b.Phone, b.DateOfBirth,
			b.Postcode, b.LicenseNumber, b.Employer, b.VehicleType, b.HearAboutUs, b.MarketingConsent,
			b.VoucherCode, b.DiscountPence, b.AmountPence, b.Status, b.PaymentStatus, b.PaymentMethod,
			b.PaymentIntentID, b.IsPlaceholder, b.AdminNotes, b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		if event != nil {
			return insertOutboxEvent(ctx, tx, event)
		}
		return nil
	})
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var booking model.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, notFound(err, "get booking")
	}
	return &booking, nil
}

func (r *bookingRepository) List(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argCount := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argCount))
		args = append(args, filter.Status)
		argCount++
	}
	if filter.LocationID != nil {
		where = append(where, fmt.Sprintf("location_id = $%d", argCount))
		args = append(args, *filter.LocationID)
		argCount++
	}
	if filter.DateFrom != "" {
		where = append(where, fmt.Sprintf("booking_date >= $%d", argCount))
		args = append(args, filter.DateFrom)
		argCount++
	}
	if filter.DateTo != "" {
		where = append(where, fmt.Sprintf("booking_date <= $%d", argCount))
		args = append(args, filter.DateTo)
		argCount++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf(
			"(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d OR phone ILIKE $%d)",
			argCount, argCount, argCount, argCount))
		args = append(args, "%"+filter.Search+"%")
		argCount++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM bookings WHERE `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE %s ORDER BY booking_date DESC, slot_time DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, clause, argCount, argCount+1)
	args = append(args, filter.PageSize, filter.Offset())

	bookings := []*model.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}

func (r *bookingRepository) BlockingTimes(ctx context.Context, locationID uuid.UUID, date string) ([]string, error) {
	query := `
		SELECT slot_time
		FROM bookings
		WHERE location_id = $1
		AND booking_date = $2
		AND status IN ('pending', 'confirmed')
		AND NOT is_placeholder
	`
	var times []string
	if err := r.db.SelectContext(ctx, &times, query, locationID, date); err != nil {
		return nil, fmt.Errorf("failed to list booked slots: %w", err)
	}
	return times, nil
}

func (r *bookingRepository) FindByPaymentReference(ctx context.Context, refs []string) (*model.Booking, error) {
	if len(refs) == 0 {
		return nil, repository.ErrNotFound
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_intent_id = ANY($1) LIMIT 1`

	var booking model.Booking
	if err := r.db.GetContext(ctx, &booking, query, pq.Array(refs)); err != nil {
		return nil, notFound(err, "find booking by payment reference")
	}
	return &booking, nil
}

func (r *bookingRepository) FindPendingByMatch(ctx context.Context, m model.BookingMatch) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE lower(email) = lower($1)
		AND service_title = $2
		AND booking_date = $3
		AND slot_time = $4
		AND status = 'pending'
		AND NOT is_placeholder
	`
	bookings := []*model.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, m.Email, m.ServiceTitle, m.Date, m.Time); err != nil {
		return nil, fmt.Errorf("failed to match bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	query := `
		UPDATE bookings
		SET payment_intent_id = $1, payment_status = 'pending', updated_at = $2
		WHERE id = $3 AND payment_intent_id IS NULL AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, reference, time.Now().UTC(), id)
	if err != nil {
		if isUniqueViolation(err, "") {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to set payment reference: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrReferenceAlreadySet
	}
	return nil
}

func (r *bookingRepository) UpdateState(ctx context.Context, b *model.Booking, guard repository.StateGuard, event *model.OutboxEvent) error {
	query := `
		UPDATE bookings
		SET status = $1, payment_status = $2, admin_notes = $3, updated_at = $4
		WHERE id = $5 AND status = $6 AND payment_status IS NOT DISTINCT FROM $7
	`
	b.UpdatedAt = time.Now().UTC()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			b.Status, b.PaymentStatus, b.AdminNotes, b.UpdatedAt,
			b.ID, guard.Status, guard.PaymentStatus,
		)
		if err != nil {
			if isUniqueViolation(err, confirmedSlotConstraint) {
				return repository.ErrSlotTaken
			}
			return fmt.Errorf("failed to update booking state: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrStaleState
		}

		if event != nil {
			if err := insertOutboxEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}
