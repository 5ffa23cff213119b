package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testOffer = FeatureOffer{
	Amount:     499,
	Currency:   "usd",
	Days:       7,
	SuccessURL: "https://example.com/ok",
	CancelURL:  "https://example.com/cancel",
}

type paymentFixture struct {
	payments *mockPaymentRepository
	ads      *mockAdRepository
	users    *mockUserRepository
	gateway  *mockGateway
	events   *recordingPublisher
	now      time.Time
	svc      *paymentService
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		payments: new(mockPaymentRepository),
		ads:      new(mockAdRepository),
		users:    new(mockUserRepository),
		gateway:  new(mockGateway),
		events:   &recordingPublisher{},
		now:      time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewPaymentService(f.payments, f.ads, f.users, f.gateway, testOffer, f.events, newTestMetrics()).(*paymentService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestCreateFeatureCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("only the owner of an active ad", func(t *testing.T) {
		f := newPaymentFixture()
		f.ads.On("GetByIDUncached", mock.Anything, int64(10)).Return(&domain.Ad{ID: 10, UserID: 1, Status: domain.AdStatusActive}, nil)
		f.ads.On("GetByIDUncached", mock.Anything, int64(11)).Return(&domain.Ad{ID: 11, UserID: 1, Status: domain.AdStatusPending}, nil)

		_, err := f.svc.CreateFeatureCheckout(ctx, 2, 10)
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = f.svc.CreateFeatureCheckout(ctx, 1, 11)
		assert.ErrorIs(t, err, ErrAdNotActive)
	})

	t.Run("stores the processor session", func(t *testing.T) {
		f := newPaymentFixture()
		f.ads.On("GetByIDUncached", mock.Anything, int64(10)).Return(&domain.Ad{ID: 10, UserID: 1, Title: "Bike", Status: domain.AdStatusActive}, nil)
		f.users.On("GetByID", mock.Anything, int64(1)).Return(&domain.User{ID: 1, Email: "jane@example.com"}, nil)
		f.payments.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
			return p.Amount == 499 && p.Currency == "usd" && p.Status == domain.PaymentStatusPending &&
				p.Purpose == domain.PaymentPurposeFeatureAd && p.Provider == "fake"
		})).Return(&domain.Payment{ID: 77, UserID: 1, AdID: 10, Amount: 499, Currency: "usd", Status: domain.PaymentStatusPending}, nil)
		f.gateway.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req payment.CheckoutRequest) bool {
			return req.PaymentID == 77 && req.Amount == 499 && req.Email == "jane@example.com" &&
				req.Reference != "" && req.SuccessURL == testOffer.SuccessURL
		})).Return(&payment.Session{ID: "cs_1", URL: "https://checkout/cs_1", Status: payment.SessionOpen}, nil)
		f.payments.On("SetSession", mock.Anything, int64(77), "cs_1", "https://checkout/cs_1").Return(nil)

		p, err := f.svc.CreateFeatureCheckout(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, "cs_1", p.SessionID)
		assert.Equal(t, "https://checkout/cs_1", p.CheckoutURL)
		f.payments.AssertExpectations(t)
	})

	t.Run("processor failure marks the payment failed", func(t *testing.T) {
		f := newPaymentFixture()
		f.ads.On("GetByIDUncached", mock.Anything, int64(10)).Return(&domain.Ad{ID: 10, UserID: 1, Status: domain.AdStatusActive}, nil)
		f.users.On("GetByID", mock.Anything, int64(1)).Return(nil, sql.ErrNoRows)
		f.payments.On("Create", mock.Anything, mock.Anything).Return(&domain.Payment{ID: 78, Status: domain.PaymentStatusPending}, nil)
		f.gateway.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, errors.New("card network down"))
		f.payments.On("Transition", mock.Anything, int64(78), domain.PaymentStatusFailed).Return(true, nil)

		_, err := f.svc.CreateFeatureCheckout(ctx, 1, 10)
		assert.ErrorIs(t, err, ErrPaymentProvider)
		f.payments.AssertExpectations(t)
	})
}

func TestVerifyPaidFeaturesAd(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	pending := &domain.Payment{ID: 5, UserID: 1, AdID: 10, Status: domain.PaymentStatusPending, SessionID: "cs_5"}
	paid := &domain.Payment{ID: 5, UserID: 1, AdID: 10, Status: domain.PaymentStatusPaid, SessionID: "cs_5"}

	f.payments.On("GetByID", mock.Anything, int64(5)).Return(pending, nil).Once()
	f.gateway.On("GetSession", mock.Anything, "cs_5").Return(&payment.Session{ID: "cs_5", Status: payment.SessionComplete, Paid: true}, nil)
	f.payments.On("SettlePaid", mock.Anything, int64(5), int64(10), 7, f.now).Return(true, nil)
	f.ads.On("InvalidateCache", mock.Anything, int64(10)).Return(nil)
	f.payments.On("GetByID", mock.Anything, int64(5)).Return(paid, nil).Once()

	p, err := f.svc.Verify(ctx, Viewer{UserID: 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, p.Status)
	assert.Equal(t, []string{domain.EventPaymentUpdated}, f.events.types())
	f.payments.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)
	f.ads.AssertExpectations(t)
}

func TestVerifyRetriesAfterFailedSettlement(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture()
	pending := &domain.Payment{ID: 5, UserID: 1, AdID: 10, Status: domain.PaymentStatusPending, SessionID: "cs_5"}
	paid := &domain.Payment{ID: 5, UserID: 1, AdID: 10, Status: domain.PaymentStatusPaid, SessionID: "cs_5"}

	// The settlement transaction rolled back, so the payment is still pending.
	f.payments.On("GetByID", mock.Anything, int64(5)).Return(pending, nil).Twice()
	f.gateway.On("GetSession", mock.Anything, "cs_5").Return(&payment.Session{ID: "cs_5", Status: payment.SessionComplete, Paid: true}, nil)
	f.payments.On("SettlePaid", mock.Anything, int64(5), int64(10), 7, f.now).Return(false, errors.New("deadlock")).Once()
	f.payments.On("SettlePaid", mock.Anything, int64(5), int64(10), 7, f.now).Return(true, nil).Once()
	f.ads.On("InvalidateCache", mock.Anything, int64(10)).Return(nil)
	f.payments.On("GetByID", mock.Anything, int64(5)).Return(paid, nil).Once()

	_, err := f.svc.Verify(ctx, Viewer{UserID: 1}, 5)
	require.Error(t, err)
	assert.Empty(t, f.events.events)

	p, err := f.svc.Verify(ctx, Viewer{UserID: 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, p.Status)
	f.payments.AssertNumberOfCalls(t, "SettlePaid", 2)
	f.ads.AssertNumberOfCalls(t, "InvalidateCache", 1)
}

func TestVerifyExpiredCancels(t *testing.T) {
	f := newPaymentFixture()
	f.payments.On("GetByID", mock.Anything, int64(6)).Return(&domain.Payment{ID: 6, UserID: 1, AdID: 10, Status: domain.PaymentStatusPending, SessionID: "cs_6"}, nil).Once()
	f.gateway.On("GetSession", mock.Anything, "cs_6").Return(&payment.Session{ID: "cs_6", Status: payment.SessionExpired}, nil)
	f.payments.On("Transition", mock.Anything, int64(6), domain.PaymentStatusCancelled).Return(true, nil)
	f.payments.On("GetByID", mock.Anything, int64(6)).Return(&domain.Payment{ID: 6, UserID: 1, Status: domain.PaymentStatusCancelled}, nil).Once()

	p, err := f.svc.Verify(context.Background(), Viewer{UserID: 1}, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, p.Status)
	f.payments.AssertNotCalled(t, "SettlePaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyIsIdempotentForFinalPayments(t *testing.T) {
	f := newPaymentFixture()
	final := &domain.Payment{ID: 5, UserID: 1, Status: domain.PaymentStatusPaid, SessionID: "cs_5"}
	f.payments.On("GetByID", mock.Anything, int64(5)).Return(final, nil)
	f.gateway.On("GetSession", mock.Anything, "cs_5").Return(&payment.Session{ID: "cs_5", Paid: true}, nil)

	p, err := f.svc.Verify(context.Background(), Viewer{UserID: 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, final, p)
	f.payments.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.events.events)
}

func TestVerifyChecksOwnership(t *testing.T) {
	f := newPaymentFixture()
	f.payments.On("GetByID", mock.Anything, int64(5)).Return(&domain.Payment{ID: 5, UserID: 1, Status: domain.PaymentStatusPending}, nil)

	_, err := f.svc.Verify(context.Background(), Viewer{UserID: 2}, 5)
	assert.ErrorIs(t, err, ErrForbidden)

	p, err := f.svc.Verify(context.Background(), Viewer{UserID: 2, Role: domain.RoleAdmin}, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, p.Status)
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("bad signature", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.On("ParseWebhook", []byte("{}"), "bad").Return(nil, payment.ErrInvalidSignature)

		err := f.svc.HandleWebhook(ctx, []byte("{}"), "bad")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("unrelated events are acknowledged", func(t *testing.T) {
		f := newPaymentFixture()
		f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(&payment.WebhookEvent{ID: "evt_1", Type: "customer.created"}, nil)

		assert.NoError(t, f.svc.HandleWebhook(ctx, []byte("{}"), "sig"))
	})

	t.Run("completed session settles the payment once", func(t *testing.T) {
		f := newPaymentFixture()
		session := &payment.Session{ID: "cs_9", Status: payment.SessionComplete, Paid: true, PaymentID: 9}
		f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(&payment.WebhookEvent{
			ID: "evt_2", Type: payment.EventCheckoutCompleted, Session: session,
		}, nil)
		f.payments.On("GetBySessionID", mock.Anything, "cs_9").Return(&domain.Payment{ID: 9, UserID: 1, AdID: 10, Status: domain.PaymentStatusPending}, nil).Once()
		f.payments.On("SettlePaid", mock.Anything, int64(9), int64(10), 7, mock.AnythingOfType("time.Time")).Return(true, nil)
		f.ads.On("InvalidateCache", mock.Anything, int64(10)).Return(nil)
		f.payments.On("GetByID", mock.Anything, int64(9)).Return(&domain.Payment{ID: 9, UserID: 1, Status: domain.PaymentStatusPaid}, nil)

		require.NoError(t, f.svc.HandleWebhook(ctx, []byte("{}"), "sig"))

		// A redelivery finds the payment already final.
		f.payments.On("GetBySessionID", mock.Anything, "cs_9").Return(&domain.Payment{ID: 9, Status: domain.PaymentStatusPaid}, nil).Once()
		require.NoError(t, f.svc.HandleWebhook(ctx, []byte("{}"), "sig"))

		f.payments.AssertNumberOfCalls(t, "SettlePaid", 1)
		f.ads.AssertNumberOfCalls(t, "InvalidateCache", 1)
	})

	t.Run("falls back to the payment id in metadata", func(t *testing.T) {
		f := newPaymentFixture()
		session := &payment.Session{ID: "cs_new", Status: payment.SessionExpired, PaymentID: 12}
		f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(&payment.WebhookEvent{
			Type: payment.EventCheckoutExpired, Session: session,
		}, nil)
		f.payments.On("GetBySessionID", mock.Anything, "cs_new").Return(nil, sql.ErrNoRows)
		f.payments.On("GetByID", mock.Anything, int64(12)).Return(&domain.Payment{ID: 12, UserID: 1, Status: domain.PaymentStatusPending}, nil).Once()
		f.payments.On("Transition", mock.Anything, int64(12), domain.PaymentStatusCancelled).Return(true, nil)
		f.payments.On("GetByID", mock.Anything, int64(12)).Return(&domain.Payment{ID: 12, UserID: 1, Status: domain.PaymentStatusCancelled}, nil).Once()

		require.NoError(t, f.svc.HandleWebhook(ctx, []byte("{}"), "sig"))
		f.payments.AssertExpectations(t)
	})
}
