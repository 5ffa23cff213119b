package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/infrastructure/payment"
	"classifieds/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FeatureOffer is the price and duration of a featured placement.
type FeatureOffer struct {
	Amount     int64
	Currency   string
	Days       int
	SuccessURL string
	CancelURL  string
}

// Reconciliation is the outcome of comparing a payment with its processor session.
type Reconciliation struct {
	Payment      *domain.Payment      `json:"payment"`
	StoredStatus domain.PaymentStatus `json:"stored_status"`
	Session      *payment.Session     `json:"session,omitempty"`
	Settled      bool                 `json:"settled"`
}

type PaymentService interface {
	CreateFeatureCheckout(ctx context.Context, userID, adID int64) (*domain.Payment, error)
	Verify(ctx context.Context, viewer Viewer, paymentID int64) (*domain.Payment, error)
	Reconcile(ctx context.Context, paymentID int64) (*Reconciliation, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ListMine(ctx context.Context, userID int64) ([]*domain.Payment, error)
}

type paymentService struct {
	payments repository.PaymentRepository
	ads      repository.AdRepository
	users    repository.UserRepository
	gateway  payment.Gateway
	offer    FeatureOffer
	events   EventPublisher
	now      func() time.Time
	metrics  *metrics.ServiceMetrics
	tracer   trace.Tracer
}

func NewPaymentService(
	payments repository.PaymentRepository,
	ads repository.AdRepository,
	users repository.UserRepository,
	gateway payment.Gateway,
	offer FeatureOffer,
	events EventPublisher,
	metrics *metrics.ServiceMetrics,
) PaymentService {
	if events == nil {
		events = NopPublisher{}
	}
	return &paymentService{
		payments: payments,
		ads:      ads,
		users:    users,
		gateway:  gateway,
		offer:    offer,
		events:   events,
		now:      time.Now,
		metrics:  metrics,
		tracer:   otel.Tracer("classifieds/service"),
	}
}

func (s *paymentService) CreateFeatureCheckout(ctx context.Context, userID, adID int64) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "CreateFeatureCheckout")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("CreateFeatureCheckout", &status, time.Now())

	if adID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	ad, err := s.ads.GetByIDUncached(ctx, adID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}
	if ad.UserID != userID {
		status = "forbidden"
		return nil, ErrForbidden
	}
	if !ad.IsVisible() {
		status = "not_active"
		return nil, ErrAdNotActive
	}

	var email string
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		email = user.Email
	}

	p, err := s.payments.Create(ctx, &domain.Payment{
		UserID:   userID,
		AdID:     adID,
		Amount:   s.offer.Amount,
		Currency: s.offer.Currency,
		Purpose:  domain.PaymentPurposeFeatureAd,
		Status:   domain.PaymentStatusPending,
		Provider: s.gateway.Name(),
	})
	if err != nil {
		return nil, fail(span, &status, err)
	}
	span.SetAttributes(attribute.Int64("payment.id", p.ID))

	session, err := s.gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		Reference:   uuid.NewString(),
		PaymentID:   p.ID,
		Description: fmt.Sprintf("Featured placement for %q (%d days)", ad.Title, s.offer.Days),
		Amount:      p.Amount,
		Currency:    p.Currency,
		SuccessURL:  s.offer.SuccessURL,
		CancelURL:   s.offer.CancelURL,
		Email:       email,
	})
	if err != nil {
		span.RecordError(err)
		if _, terr := s.payments.Transition(ctx, p.ID, domain.PaymentStatusFailed); terr != nil {
			span.RecordError(terr)
		}
		status = "provider_error"
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	if err := s.payments.SetSession(ctx, p.ID, session.ID, session.URL); err != nil {
		return nil, fail(span, &status, err)
	}
	p.SessionID = session.ID
	p.CheckoutURL = session.URL
	return p, nil
}

func (s *paymentService) Verify(ctx context.Context, viewer Viewer, paymentID int64) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "VerifyPayment")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("VerifyPayment", &status, time.Now())

	if paymentID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrPaymentNotFound)
	}
	if p.UserID != viewer.UserID && !viewer.IsAdmin() {
		status = "forbidden"
		return nil, ErrForbidden
	}

	rec, err := s.reconcile(ctx, p)
	if err != nil {
		return nil, fail(span, &status, err)
	}
	return rec.Payment, nil
}

func (s *paymentService) Reconcile(ctx context.Context, paymentID int64) (*Reconciliation, error) {
	ctx, span := s.tracer.Start(ctx, "ReconcilePayment")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("ReconcilePayment", &status, time.Now())

	if paymentID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrPaymentNotFound)
	}

	rec, err := s.reconcile(ctx, p)
	if err != nil {
		return nil, fail(span, &status, err)
	}
	return rec, nil
}

// reconcile asks the processor for the session behind p and settles it. Final
// payments are still looked up so callers can compare both sides.
func (s *paymentService) reconcile(ctx context.Context, p *domain.Payment) (*Reconciliation, error) {
	rec := &Reconciliation{Payment: p, StoredStatus: p.Status}
	if p.SessionID == "" {
		return rec, nil
	}

	session, err := s.gateway.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	rec.Session = session

	if p.IsFinal() {
		return rec, nil
	}

	settled, err := s.settle(ctx, p, session)
	if err != nil {
		return nil, err
	}
	rec.Payment = settled
	rec.Settled = settled.Status != rec.StoredStatus
	return rec, nil
}

// settle applies a processor session to a pending payment. Marking it paid and
// extending the ad's featured window commit together, so a failure leaves the
// payment pending and a later verify or webhook retries both.
func (s *paymentService) settle(ctx context.Context, p *domain.Payment, session *payment.Session) (*domain.Payment, error) {
	var to domain.PaymentStatus
	switch {
	case session.Paid:
		to = domain.PaymentStatusPaid
	case session.Status == payment.SessionExpired:
		to = domain.PaymentStatusCancelled
	default:
		return p, nil
	}

	var (
		changed bool
		err     error
	)
	if to == domain.PaymentStatusPaid {
		changed, err = s.payments.SettlePaid(ctx, p.ID, p.AdID, s.offer.Days, s.now())
	} else {
		changed, err = s.payments.Transition(ctx, p.ID, to)
	}
	if err != nil {
		return nil, err
	}

	if changed && to == domain.PaymentStatusPaid {
		if err := s.ads.InvalidateCache(ctx, p.AdID); err != nil {
			trace.SpanFromContext(ctx).RecordError(err)
		}
	}

	fresh, err := s.payments.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	if changed {
		err := s.events.Publish(ctx, domain.Event{
			Type:       domain.EventPaymentUpdated,
			Recipients: []int64{fresh.UserID},
			Payload:    fresh,
		})
		if err != nil {
			trace.SpanFromContext(ctx).RecordError(err)
		}
	}
	return fresh, nil
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := s.tracer.Start(ctx, "HandlePaymentWebhook")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("HandlePaymentWebhook", &status, time.Now())

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			status = "invalid_signature"
			return ErrInvalidSignature
		}
		return fail(span, &status, err)
	}
	span.SetAttributes(attribute.String("event.type", event.Type), attribute.String("event.id", event.ID))

	if event.Session == nil || (event.Type != payment.EventCheckoutCompleted && event.Type != payment.EventCheckoutExpired) {
		status = "ignored"
		return nil
	}

	p, err := s.payments.GetBySessionID(ctx, event.Session.ID)
	if errors.Is(err, sql.ErrNoRows) && event.Session.PaymentID > 0 {
		p, err = s.payments.GetByID(ctx, event.Session.PaymentID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Not ours; acknowledge so the processor stops retrying.
			status = "ignored"
			return nil
		}
		return fail(span, &status, err)
	}

	if p.IsFinal() {
		status = "duplicate"
		return nil
	}

	if _, err := s.settle(ctx, p, event.Session); err != nil {
		return fail(span, &status, err)
	}
	return nil
}

func (s *paymentService) ListMine(ctx context.Context, userID int64) ([]*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "ListMyPayments")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("ListMyPayments", &status, time.Now())

	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fail(span, &status, err)
	}
	return payments, nil
}
