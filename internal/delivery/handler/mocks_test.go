package handler

import (
	"context"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
)

func newTestMetrics() *metrics.HandlerMetrics {
	reg := prometheus.NewRegistry()
	return metrics.NewHandlerMetrics(reg, reg)
}

type mockAdService struct {
	mock.Mock
}

func (m *mockAdService) List(ctx context.Context, filter domain.AdFilter) (*service.PaginationResult, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).(*service.PaginationResult)
	return res, args.Error(1)
}

func (m *mockAdService) Get(ctx context.Context, id int64, viewer service.Viewer) (*domain.Ad, error) {
	args := m.Called(ctx, id, viewer)
	ad, _ := args.Get(0).(*domain.Ad)
	return ad, args.Error(1)
}

func (m *mockAdService) Create(ctx context.Context, userID int64, in service.AdInput) (*domain.Ad, error) {
	args := m.Called(ctx, userID, in)
	ad, _ := args.Get(0).(*domain.Ad)
	return ad, args.Error(1)
}

func (m *mockAdService) Update(ctx context.Context, userID, id int64, in service.AdInput) (*domain.Ad, error) {
	args := m.Called(ctx, userID, id, in)
	ad, _ := args.Get(0).(*domain.Ad)
	return ad, args.Error(1)
}

func (m *mockAdService) ChangeStatus(ctx context.Context, userID, id int64, to domain.AdStatus) (*domain.Ad, error) {
	args := m.Called(ctx, userID, id, to)
	ad, _ := args.Get(0).(*domain.Ad)
	return ad, args.Error(1)
}

func (m *mockAdService) Delete(ctx context.Context, viewer service.Viewer, id int64) error {
	return m.Called(ctx, viewer, id).Error(0)
}

func (m *mockAdService) ListByOwner(ctx context.Context, userID int64, filter domain.AdFilter) (*service.PaginationResult, error) {
	args := m.Called(ctx, userID, filter)
	res, _ := args.Get(0).(*service.PaginationResult)
	return res, args.Error(1)
}

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Register(ctx context.Context, in service.RegisterInput) (*domain.User, error) {
	args := m.Called(ctx, in)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	args := m.Called(ctx, email, password)
	u, _ := args.Get(1).(*domain.User)
	return args.String(0), u, args.Error(2)
}

func (m *mockAuthService) ParseToken(token string) (*service.Identity, error) {
	args := m.Called(token)
	id, _ := args.Get(0).(*service.Identity)
	return id, args.Error(1)
}

func (m *mockAuthService) Me(ctx context.Context, userID int64) (*domain.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

type mockChatService struct {
	mock.Mock
}

func (m *mockChatService) StartChat(ctx context.Context, buyerID, adID int64) (*domain.Chat, error) {
	args := m.Called(ctx, buyerID, adID)
	c, _ := args.Get(0).(*domain.Chat)
	return c, args.Error(1)
}

func (m *mockChatService) ListChats(ctx context.Context, userID int64) ([]*domain.ChatSummary, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).([]*domain.ChatSummary)
	return c, args.Error(1)
}

func (m *mockChatService) GetChat(ctx context.Context, userID, chatID int64) (*domain.Chat, error) {
	args := m.Called(ctx, userID, chatID)
	c, _ := args.Get(0).(*domain.Chat)
	return c, args.Error(1)
}

func (m *mockChatService) SendMessage(ctx context.Context, userID, chatID int64, body string) (*domain.Message, error) {
	args := m.Called(ctx, userID, chatID, body)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func (m *mockChatService) ListMessages(ctx context.Context, userID, chatID int64, cursor domain.MessageCursor, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, userID, chatID, cursor, limit)
	msgs, _ := args.Get(0).([]*domain.Message)
	return msgs, args.Error(1)
}

func (m *mockChatService) MarkRead(ctx context.Context, userID, chatID int64) (int64, error) {
	args := m.Called(ctx, userID, chatID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChatService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) CreateFeatureCheckout(ctx context.Context, userID, adID int64) (*domain.Payment, error) {
	args := m.Called(ctx, userID, adID)
	p, _ := args.Get(0).(*domain.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentService) Verify(ctx context.Context, viewer service.Viewer, paymentID int64) (*domain.Payment, error) {
	args := m.Called(ctx, viewer, paymentID)
	p, _ := args.Get(0).(*domain.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentService) Reconcile(ctx context.Context, paymentID int64) (*service.Reconciliation, error) {
	args := m.Called(ctx, paymentID)
	r, _ := args.Get(0).(*service.Reconciliation)
	return r, args.Error(1)
}

func (m *mockPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

func (m *mockPaymentService) ListMine(ctx context.Context, userID int64) ([]*domain.Payment, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).([]*domain.Payment)
	return p, args.Error(1)
}

type mockAdminService struct {
	mock.Mock
}

func (m *mockAdminService) Stats(ctx context.Context) (*service.Stats, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*service.Stats)
	return s, args.Error(1)
}

func (m *mockAdminService) ListUsers(ctx context.Context, query string, page, limit int) (*service.UserPage, error) {
	args := m.Called(ctx, query, page, limit)
	p, _ := args.Get(0).(*service.UserPage)
	return p, args.Error(1)
}

func (m *mockAdminService) SetUserStatus(ctx context.Context, actorID, userID int64, status domain.UserStatus) (*domain.User, error) {
	args := m.Called(ctx, actorID, userID, status)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockAdminService) SetUserRole(ctx context.Context, actorID, userID int64, role domain.Role) (*domain.User, error) {
	args := m.Called(ctx, actorID, userID, role)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

func (m *mockAdminService) ListAds(ctx context.Context, filter domain.AdFilter) (*service.PaginationResult, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).(*service.PaginationResult)
	return res, args.Error(1)
}

func (m *mockAdminService) ModerateAd(ctx context.Context, adID int64, to domain.AdStatus, reason string) (*domain.Ad, error) {
	args := m.Called(ctx, adID, to, reason)
	ad, _ := args.Get(0).(*domain.Ad)
	return ad, args.Error(1)
}

func (m *mockAdminService) DeleteAd(ctx context.Context, adID int64) error {
	return m.Called(ctx, adID).Error(0)
}

func (m *mockAdminService) ListPayments(ctx context.Context, status domain.PaymentStatus, page, limit int) (*service.PaymentPage, error) {
	args := m.Called(ctx, status, page, limit)
	p, _ := args.Get(0).(*service.PaymentPage)
	return p, args.Error(1)
}
