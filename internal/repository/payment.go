package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const paymentColumns = `id, user_id, ad_id, amount, currency, purpose, status, provider, session_id, checkout_url, created_at, updated_at`

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error)
	SetSession(ctx context.Context, id int64, sessionID, checkoutURL string) error
	Transition(ctx context.Context, id int64, to domain.PaymentStatus) (bool, error)
	SettlePaid(ctx context.Context, id, adID int64, days int, now time.Time) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Payment, error)
	List(ctx context.Context, status domain.PaymentStatus, limit, offset int) ([]*domain.Payment, error)
	Count(ctx context.Context, status domain.PaymentStatus) (int, error)
	Totals(ctx context.Context) (*domain.PaymentTotals, error)
}

type mysqlPaymentRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlPaymentRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) PaymentRepository {
	return &mysqlPaymentRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("classifieds/repository"),
	}
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p               domain.Payment
		purpose, status string
		sessionID       sql.NullString
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.AdID, &p.Amount, &p.Currency, &purpose, &status, &p.Provider,
		&sessionID, &p.CheckoutURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Purpose = domain.PaymentPurpose(purpose)
	p.Status = domain.PaymentStatus(status)
	p.SessionID = sessionID.String
	return &p, nil
}

func (r *mysqlPaymentRepository) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreatePayment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("payment.ad_id", p.AdID),
		attribute.Int64("payment.amount", p.Amount),
	)

	status := "success"
	defer r.metrics.Observe("CreatePayment", &status, time.Now())

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (user_id, ad_id, amount, currency, purpose, status, provider) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.AdID, p.Amount, p.Currency, string(p.Purpose), string(p.Status), p.Provider)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *mysqlPaymentRepository) getOne(ctx context.Context, name, where string, arg interface{}) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "Repository "+name)
	defer span.End()

	status := "success"
	defer r.metrics.Observe(name, &status, time.Now())

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s`, paymentColumns, where)
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, err
		}
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (r *mysqlPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return r.getOne(ctx, "GetPaymentByID", "id = ?", id)
}

func (r *mysqlPaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error) {
	return r.getOne(ctx, "GetPaymentBySessionID", "session_id = ?", sessionID)
}

func (r *mysqlPaymentRepository) SetSession(ctx context.Context, id int64, sessionID, checkoutURL string) error {
	ctx, span := r.tracer.Start(ctx, "Repository SetPaymentSession")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("SetPaymentSession", &status, time.Now())

	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET session_id = ?, checkout_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		sessionID, checkoutURL, id)
	if err != nil {
		recordError(span, &status, err)
		return fmt.Errorf("failed to set payment session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		recordError(span, &status, err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if rowsAffected == 0 {
		status = "not_found"
		return sql.ErrNoRows
	}
	return nil
}

// Transition moves a pending payment to a final status. It reports false when
// the payment was no longer pending, so concurrent settlements apply once.
func (r *mysqlPaymentRepository) Transition(ctx context.Context, id int64, to domain.PaymentStatus) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Repository TransitionPayment")
	defer span.End()

	span.SetAttributes(attribute.Int64("payment.id", id), attribute.String("payment.status", string(to)))

	status := "success"
	defer r.metrics.Observe("TransitionPayment", &status, time.Now())

	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		string(to), id, string(domain.PaymentStatusPending))
	if err != nil {
		recordError(span, &status, err)
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		recordError(span, &status, err)
		return false, fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if rowsAffected == 0 {
		status = "unchanged"
	}
	return rowsAffected == 1, nil
}

// SettlePaid marks a pending payment paid and extends the ad's featured
// window in one transaction. The window stacks on an unexpired one; the row
// lock taken by the UPDATE serializes concurrent settlements for the same ad.
func (r *mysqlPaymentRepository) SettlePaid(ctx context.Context, id, adID int64, days int, now time.Time) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Repository SettlePaidPayment")
	defer span.End()

	span.SetAttributes(attribute.Int64("payment.id", id), attribute.Int64("ad.id", adID))

	status := "success"
	defer r.metrics.Observe("SettlePaidPayment", &status, time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		recordError(span, &status, err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		string(domain.PaymentStatusPaid), id, string(domain.PaymentStatusPending))
	if err != nil {
		recordError(span, &status, err)
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		recordError(span, &status, err)
		return false, fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if rowsAffected == 0 {
		status = "unchanged"
		return false, nil
	}

	now = now.UTC()
	// A deleted ad has nothing left to feature; the payment still settles.
	_, err = tx.ExecContext(ctx,
		`UPDATE ads
		SET featured_until = DATE_ADD(GREATEST(COALESCE(featured_until, ?), ?), INTERVAL ? DAY),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		now, now, days, adID)
	if err != nil {
		recordError(span, &status, err)
		return false, fmt.Errorf("failed to extend featured window: %w", err)
	}
	if err := tx.Commit(); err != nil {
		recordError(span, &status, err)
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}

func (r *mysqlPaymentRepository) list(ctx context.Context, name, query string, args ...interface{}) ([]*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "Repository "+name)
	defer span.End()

	status := "success"
	defer r.metrics.Observe(name, &status, time.Now())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := []*domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			recordError(span, &status, err)
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return payments, nil
}

func (r *mysqlPaymentRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Payment, error) {
	return r.list(ctx, "ListPaymentsByUser",
		fmt.Sprintf(`SELECT %s FROM payments WHERE user_id = ? ORDER BY id DESC`, paymentColumns), userID)
}

func (r *mysqlPaymentRepository) List(ctx context.Context, s domain.PaymentStatus, limit, offset int) ([]*domain.Payment, error) {
	if s == "" {
		return r.list(ctx, "ListPayments",
			fmt.Sprintf(`SELECT %s FROM payments ORDER BY id DESC LIMIT ? OFFSET ?`, paymentColumns), limit, offset)
	}
	return r.list(ctx, "ListPayments",
		fmt.Sprintf(`SELECT %s FROM payments WHERE status = ? ORDER BY id DESC LIMIT ? OFFSET ?`, paymentColumns),
		string(s), limit, offset)
}

func (r *mysqlPaymentRepository) Count(ctx context.Context, s domain.PaymentStatus) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountPayments")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("CountPayments", &status, time.Now())

	query, args := "SELECT COUNT(*) FROM payments", []interface{}{}
	if s != "" {
		query += " WHERE status = ?"
		args = append(args, string(s))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		recordError(span, &status, err)
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}

func (r *mysqlPaymentRepository) Totals(ctx context.Context) (*domain.PaymentTotals, error) {
	ctx, span := r.tracer.Start(ctx, "Repository PaymentTotals")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("PaymentTotals", &status, time.Now())

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, currency, COUNT(*), COALESCE(SUM(amount), 0) FROM payments GROUP BY status, currency`)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to aggregate payments: %w", err)
	}
	defer rows.Close()

	totals := &domain.PaymentTotals{
		Counts:  make(map[domain.PaymentStatus]int),
		Revenue: make(map[string]int64),
	}
	for rows.Next() {
		var (
			s, currency string
			n           int
			sum         int64
		)
		if err := rows.Scan(&s, &currency, &n, &sum); err != nil {
			recordError(span, &status, err)
			return nil, fmt.Errorf("failed to scan payment totals: %w", err)
		}
		totals.Counts[domain.PaymentStatus(s)] += n
		if domain.PaymentStatus(s) == domain.PaymentStatusPaid {
			totals.Revenue[currency] += sum
		}
	}
	if err := rows.Err(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return totals, nil
}
