package service

import (
	"context"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/infrastructure/payment"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
)

func newTestMetrics() *metrics.ServiceMetrics {
	return metrics.NewServiceMetrics(prometheus.NewRegistry())
}

func adOrNil(args mock.Arguments, i int) *domain.Ad {
	if v := args.Get(i); v != nil {
		return v.(*domain.Ad)
	}
	return nil
}

type mockAdRepository struct {
	mock.Mock
}

func (m *mockAdRepository) List(ctx context.Context, filter domain.AdFilter) ([]*domain.Ad, error) {
	args := m.Called(ctx, filter)
	ads, _ := args.Get(0).([]*domain.Ad)
	return ads, args.Error(1)
}

func (m *mockAdRepository) Count(ctx context.Context, filter domain.AdFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *mockAdRepository) GetByID(ctx context.Context, id int64) (*domain.Ad, error) {
	args := m.Called(ctx, id)
	return adOrNil(args, 0), args.Error(1)
}

func (m *mockAdRepository) GetByIDUncached(ctx context.Context, id int64) (*domain.Ad, error) {
	args := m.Called(ctx, id)
	return adOrNil(args, 0), args.Error(1)
}

func (m *mockAdRepository) GetCached(ctx context.Context, id int64) (*domain.Ad, error) {
	args := m.Called(ctx, id)
	return adOrNil(args, 0), args.Error(1)
}

func (m *mockAdRepository) InvalidateCache(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAdRepository) Create(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	args := m.Called(ctx, ad)
	return adOrNil(args, 0), args.Error(1)
}

func (m *mockAdRepository) Update(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	args := m.Called(ctx, ad)
	return adOrNil(args, 0), args.Error(1)
}

func (m *mockAdRepository) UpdateStatus(ctx context.Context, id int64, status domain.AdStatus, note string) error {
	return m.Called(ctx, id, status, note).Error(0)
}

func (m *mockAdRepository) IncrementViews(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAdRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAdRepository) CountByStatus(ctx context.Context) (map[domain.AdStatus]int, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[domain.AdStatus]int)
	return counts, args.Error(1)
}

type mockUserRepository struct {
	mock.Mock
}

func userOrNil(args mock.Arguments) *domain.User {
	if v := args.Get(0); v != nil {
		return v.(*domain.User)
	}
	return nil
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	args := m.Called(ctx, user)
	return userOrNil(args), args.Error(1)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	return userOrNil(args), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	return userOrNil(args), args.Error(1)
}

func (m *mockUserRepository) List(ctx context.Context, query string, limit, offset int) ([]*domain.User, error) {
	args := m.Called(ctx, query, limit, offset)
	users, _ := args.Get(0).([]*domain.User)
	return users, args.Error(1)
}

func (m *mockUserRepository) Count(ctx context.Context, query string) (int, error) {
	args := m.Called(ctx, query)
	return args.Int(0), args.Error(1)
}

func (m *mockUserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*domain.User)
	return users, args.Error(1)
}

func (m *mockUserRepository) UpdateStatus(ctx context.Context, id int64, status domain.UserStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockUserRepository) UpdateRole(ctx context.Context, id int64, role domain.Role) error {
	return m.Called(ctx, id, role).Error(0)
}

func (m *mockUserRepository) CountByStatus(ctx context.Context) (map[domain.UserStatus]int, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[domain.UserStatus]int)
	return counts, args.Error(1)
}

type mockChatRepository struct {
	mock.Mock
}

func chatOrNil(args mock.Arguments) *domain.Chat {
	if v := args.Get(0); v != nil {
		return v.(*domain.Chat)
	}
	return nil
}

func (m *mockChatRepository) Create(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	args := m.Called(ctx, chat)
	return chatOrNil(args), args.Error(1)
}

func (m *mockChatRepository) GetByID(ctx context.Context, id int64) (*domain.Chat, error) {
	args := m.Called(ctx, id)
	return chatOrNil(args), args.Error(1)
}

func (m *mockChatRepository) FindByAdAndBuyer(ctx context.Context, adID, buyerID int64) (*domain.Chat, error) {
	args := m.Called(ctx, adID, buyerID)
	return chatOrNil(args), args.Error(1)
}

func (m *mockChatRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.ChatSummary, error) {
	args := m.Called(ctx, userID)
	chats, _ := args.Get(0).([]*domain.ChatSummary)
	return chats, args.Error(1)
}

func (m *mockChatRepository) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).(*domain.Message)
	return out, args.Error(1)
}

func (m *mockChatRepository) ListMessages(ctx context.Context, chatID int64, cursor domain.MessageCursor, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, chatID, cursor, limit)
	msgs, _ := args.Get(0).([]*domain.Message)
	return msgs, args.Error(1)
}

func (m *mockChatRepository) MarkRead(ctx context.Context, chatID, readerID int64) (int64, error) {
	args := m.Called(ctx, chatID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChatRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockPaymentRepository struct {
	mock.Mock
}

func paymentOrNil(args mock.Arguments) *domain.Payment {
	if v := args.Get(0); v != nil {
		return v.(*domain.Payment)
	}
	return nil
}

func (m *mockPaymentRepository) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	args := m.Called(ctx, p)
	return paymentOrNil(args), args.Error(1)
}

func (m *mockPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	return paymentOrNil(args), args.Error(1)
}

func (m *mockPaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error) {
	args := m.Called(ctx, sessionID)
	return paymentOrNil(args), args.Error(1)
}

func (m *mockPaymentRepository) SetSession(ctx context.Context, id int64, sessionID, checkoutURL string) error {
	return m.Called(ctx, id, sessionID, checkoutURL).Error(0)
}

func (m *mockPaymentRepository) Transition(ctx context.Context, id int64, to domain.PaymentStatus) (bool, error) {
	args := m.Called(ctx, id, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockPaymentRepository) SettlePaid(ctx context.Context, id, adID int64, days int, now time.Time) (bool, error) {
	args := m.Called(ctx, id, adID, days, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockPaymentRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Payment, error) {
	args := m.Called(ctx, userID)
	payments, _ := args.Get(0).([]*domain.Payment)
	return payments, args.Error(1)
}

func (m *mockPaymentRepository) List(ctx context.Context, status domain.PaymentStatus, limit, offset int) ([]*domain.Payment, error) {
	args := m.Called(ctx, status, limit, offset)
	payments, _ := args.Get(0).([]*domain.Payment)
	return payments, args.Error(1)
}

func (m *mockPaymentRepository) Count(ctx context.Context, status domain.PaymentStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *mockPaymentRepository) Totals(ctx context.Context) (*domain.PaymentTotals, error) {
	args := m.Called(ctx)
	totals, _ := args.Get(0).(*domain.PaymentTotals)
	return totals, args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "fake" }

func (m *mockGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*payment.Session)
	return s, args.Error(1)
}

func (m *mockGateway) GetSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*payment.Session)
	return s, args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	args := m.Called(payload, signature)
	e, _ := args.Get(0).(*payment.WebhookEvent)
	return e, args.Error(1)
}

// recordingPublisher keeps published events for assertions.
type recordingPublisher struct {
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.Event) error {
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
