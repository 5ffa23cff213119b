package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

type ChatService interface {
	StartChat(ctx context.Context, buyerID, adID int64) (*domain.Chat, error)
	ListChats(ctx context.Context, userID int64) ([]*domain.ChatSummary, error)
	GetChat(ctx context.Context, userID, chatID int64) (*domain.Chat, error)
	SendMessage(ctx context.Context, userID, chatID int64, body string) (*domain.Message, error)
	ListMessages(ctx context.Context, userID, chatID int64, cursor domain.MessageCursor, limit int) ([]*domain.Message, error)
	MarkRead(ctx context.Context, userID, chatID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

type chatService struct {
	chats   repository.ChatRepository
	ads     repository.AdRepository
	events  EventPublisher
	metrics *metrics.ServiceMetrics
	tracer  trace.Tracer
}

func NewChatService(chats repository.ChatRepository, ads repository.AdRepository, events EventPublisher, metrics *metrics.ServiceMetrics) ChatService {
	if events == nil {
		events = NopPublisher{}
	}
	return &chatService{
		chats:   chats,
		ads:     ads,
		events:  events,
		metrics: metrics,
		tracer:  otel.Tracer("classifieds/service"),
	}
}

func (s *chatService) StartChat(ctx context.Context, buyerID, adID int64) (*domain.Chat, error) {
	ctx, span := s.tracer.Start(ctx, "StartChat")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("StartChat", &status, time.Now())

	if adID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	ad, err := s.ads.GetByID(ctx, adID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}
	if ad.UserID == buyerID {
		status = "invalid_input"
		return nil, ErrSelfChat
	}

	existing, err := s.chats.FindByAdAndBuyer(ctx, adID, buyerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fail(span, &status, err)
	}

	if !ad.IsVisible() {
		status = "not_active"
		return nil, ErrAdNotActive
	}

	chat, err := s.chats.Create(ctx, &domain.Chat{
		AdID:     adID,
		BuyerID:  buyerID,
		SellerID: ad.UserID,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a concurrent start for the same pair.
		chat, err = s.chats.FindByAdAndBuyer(ctx, adID, buyerID)
	}
	if err != nil {
		return nil, fail(span, &status, err)
	}
	return chat, nil
}

func (s *chatService) ListChats(ctx context.Context, userID int64) ([]*domain.ChatSummary, error) {
	ctx, span := s.tracer.Start(ctx, "ListChats")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("ListChats", &status, time.Now())

	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, fail(span, &status, err)
	}
	return chats, nil
}

// participantChat loads a chat and checks that userID takes part in it.
func (s *chatService) participantChat(ctx context.Context, span trace.Span, status *string, userID, chatID int64) (*domain.Chat, error) {
	if chatID <= 0 {
		*status = "invalid_id"
		return nil, ErrInvalidID
	}

	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		span.SetAttributes(attribute.Int64("chat_id", chatID))
		return nil, notFound(span, status, err, ErrChatNotFound)
	}
	if !chat.HasParticipant(userID) {
		*status = "forbidden"
		return nil, ErrNotParticipant
	}
	return chat, nil
}

func (s *chatService) GetChat(ctx context.Context, userID, chatID int64) (*domain.Chat, error) {
	ctx, span := s.tracer.Start(ctx, "GetChat")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("GetChat", &status, time.Now())

	return s.participantChat(ctx, span, &status, userID, chatID)
}

func (s *chatService) SendMessage(ctx context.Context, userID, chatID int64, body string) (*domain.Message, error) {
	ctx, span := s.tracer.Start(ctx, "SendMessage")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("SendMessage", &status, time.Now())

	body = strings.TrimSpace(body)
	if body == "" {
		status = "invalid_input"
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > domain.MaxMessageLength {
		status = "invalid_input"
		return nil, ErrMessageTooLong
	}

	chat, err := s.participantChat(ctx, span, &status, userID, chatID)
	if err != nil {
		return nil, err
	}

	msg, err := s.chats.CreateMessage(ctx, &domain.Message{
		ChatID:   chat.ID,
		SenderID: userID,
		Body:     body,
	})
	if err != nil {
		return nil, fail(span, &status, err)
	}

	err = s.events.Publish(ctx, domain.Event{
		Type:       domain.EventMessageCreated,
		Recipients: chat.Participants(),
		Payload:    msg,
	})
	if err != nil {
		span.RecordError(err)
	}
	return msg, nil
}

func (s *chatService) ListMessages(ctx context.Context, userID, chatID int64, cursor domain.MessageCursor, limit int) ([]*domain.Message, error) {
	ctx, span := s.tracer.Start(ctx, "ListMessages")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("ListMessages", &status, time.Now())

	if _, err := s.participantChat(ctx, span, &status, userID, chatID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	msgs, err := s.chats.ListMessages(ctx, chatID, cursor, limit)
	if err != nil {
		return nil, fail(span, &status, err)
	}
	return msgs, nil
}

func (s *chatService) MarkRead(ctx context.Context, userID, chatID int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "MarkRead")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("MarkRead", &status, time.Now())

	chat, err := s.participantChat(ctx, span, &status, userID, chatID)
	if err != nil {
		return 0, err
	}

	n, err := s.chats.MarkRead(ctx, chatID, userID)
	if err != nil {
		return 0, fail(span, &status, err)
	}

	if n > 0 {
		err = s.events.Publish(ctx, domain.Event{
			Type:       domain.EventChatRead,
			Recipients: chat.Participants(),
			Payload: map[string]interface{}{
				"chat_id":   chat.ID,
				"reader_id": userID,
				"count":     n,
			},
		})
		if err != nil {
			span.RecordError(err)
		}
	}
	return n, nil
}

func (s *chatService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	ctx, span := s.tracer.Start(ctx, "UnreadCount")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("UnreadCount", &status, time.Now())

	n, err := s.chats.UnreadCount(ctx, userID)
	if err != nil {
		return 0, fail(span, &status, err)
	}
	return n, nil
}
