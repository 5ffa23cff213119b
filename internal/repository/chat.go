package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	chatColumns    = `id, ad_id, buyer_id, seller_id, last_message, last_message_at, created_at`
	messageColumns = `id, chat_id, sender_id, body, read_at, created_at`
	previewLength  = 255
)

type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat) (*domain.Chat, error)
	GetByID(ctx context.Context, id int64) (*domain.Chat, error)
	FindByAdAndBuyer(ctx context.Context, adID, buyerID int64) (*domain.Chat, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.ChatSummary, error)
	CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	ListMessages(ctx context.Context, chatID int64, cursor domain.MessageCursor, limit int) ([]*domain.Message, error)
	MarkRead(ctx context.Context, chatID, readerID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

type mysqlChatRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewMysqlChatRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) ChatRepository {
	return &mysqlChatRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("classifieds/repository"),
		now:     time.Now,
	}
}

func scanChat(row rowScanner) (*domain.Chat, error) {
	var (
		c      domain.Chat
		lastAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.AdID, &c.BuyerID, &c.SellerID, &c.LastMessage, &lastAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := lastAt.Time
		c.LastMessageAt = &t
	}
	return &c, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m      domain.Message
		readAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &readAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return &m, nil
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLength-1]) + "…"
}

func (r *mysqlChatRepository) Create(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateChat")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("CreateChat", &status, time.Now())

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO chats (ad_id, buyer_id, seller_id) VALUES (?, ?, ?)`,
		chat.AdID, chat.BuyerID, chat.SellerID)
	if err != nil {
		if isDuplicate(err) {
			status = "duplicate"
			return nil, ErrDuplicate
		}
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	span.SetAttributes(attribute.Int64("chat.id", id))
	return r.GetByID(ctx, id)
}

func (r *mysqlChatRepository) getOne(ctx context.Context, name, where string, args ...interface{}) (*domain.Chat, error) {
	ctx, span := r.tracer.Start(ctx, "Repository "+name)
	defer span.End()

	status := "success"
	defer r.metrics.Observe(name, &status, time.Now())

	query := fmt.Sprintf(`SELECT %s FROM chats WHERE %s`, chatColumns, where)
	chat, err := scanChat(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, err
		}
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

func (r *mysqlChatRepository) GetByID(ctx context.Context, id int64) (*domain.Chat, error) {
	return r.getOne(ctx, "GetChatByID", "id = ?", id)
}

func (r *mysqlChatRepository) FindByAdAndBuyer(ctx context.Context, adID, buyerID int64) (*domain.Chat, error) {
	return r.getOne(ctx, "FindChatByAdAndBuyer", "ad_id = ? AND buyer_id = ?", adID, buyerID)
}

func (r *mysqlChatRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.ChatSummary, error) {
	ctx, span := r.tracer.Start(ctx, "Repository ListChatsByUser")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("ListChatsByUser", &status, time.Now())

	query := `
		SELECT c.id, c.ad_id, c.buyer_id, c.seller_id, c.last_message, c.last_message_at, c.created_at,
			COALESCE(a.title, ''),
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id AND m.sender_id <> ? AND m.read_at IS NULL)
		FROM chats c
		LEFT JOIN ads a ON a.id = c.ad_id
		WHERE c.buyer_id = ? OR c.seller_id = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, userID, userID)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []*domain.ChatSummary{}
	for rows.Next() {
		var (
			s      domain.ChatSummary
			lastAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.AdID, &s.BuyerID, &s.SellerID, &s.LastMessage, &lastAt, &s.CreatedAt,
			&s.AdTitle, &s.UnreadCount); err != nil {
			recordError(span, &status, err)
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		if lastAt.Valid {
			t := lastAt.Time
			s.LastMessageAt = &t
		}
		chats = append(chats, &s)
	}
	if err := rows.Err(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return chats, nil
}

// CreateMessage stores the message and bumps the chat preview in one transaction.
func (r *mysqlChatRepository) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateMessage")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("CreateMessage", &status, time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sentAt := r.now().UTC().Truncate(time.Millisecond)

	result, err := tx.ExecContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, body, created_at) VALUES (?, ?, ?, ?)`,
		msg.ChatID, msg.SenderID, msg.Body, sentAt)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET last_message = ?, last_message_at = ? WHERE id = ?`,
		preview(msg.Body), sentAt, msg.ChatID); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to update chat preview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &domain.Message{
		ID:        id,
		ChatID:    msg.ChatID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		CreatedAt: sentAt,
	}, nil
}

// ListMessages returns messages oldest first. Without a cursor it returns the
// latest limit messages; with one it returns up to limit messages after it.
func (r *mysqlChatRepository) ListMessages(ctx context.Context, chatID int64, cursor domain.MessageCursor, limit int) ([]*domain.Message, error) {
	ctx, span := r.tracer.Start(ctx, "Repository ListMessages")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("ListMessages", &status, time.Now())

	var (
		query   string
		args    []interface{}
		reverse bool
	)
	switch {
	case cursor.IsZero():
		query = fmt.Sprintf(`SELECT %s FROM messages WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, messageColumns)
		args = []interface{}{chatID, limit}
		reverse = true
	case cursor.AfterID > 0:
		// Since only narrows the scan here, so it has to include its own instant.
		query = fmt.Sprintf(`SELECT %s FROM messages WHERE chat_id = ? AND id > ?`, messageColumns)
		args = []interface{}{chatID, cursor.AfterID}
		if !cursor.Since.IsZero() {
			query += ` AND created_at >= ?`
			args = append(args, cursor.Since.UTC())
		}
		query += ` ORDER BY id ASC LIMIT ?`
		args = append(args, limit)
	default:
		query = fmt.Sprintf(`SELECT %s FROM messages WHERE chat_id = ? AND created_at > ? ORDER BY created_at ASC, id ASC LIMIT ?`, messageColumns)
		args = []interface{}{chatID, cursor.Since.UTC(), limit}
	}
	span.SetAttributes(attribute.Int64("chat.id", chatID), attribute.Int64("cursor.after_id", cursor.AfterID))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			recordError(span, &status, err)
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if reverse {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

func (r *mysqlChatRepository) MarkRead(ctx context.Context, chatID, readerID int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "Repository MarkMessagesRead")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("MarkMessagesRead", &status, time.Now())

	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_at = ? WHERE chat_id = ? AND sender_id <> ? AND read_at IS NULL`,
		r.now().UTC(), chatID, readerID)
	if err != nil {
		recordError(span, &status, err)
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		recordError(span, &status, err)
		return 0, fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	return n, nil
}

func (r *mysqlChatRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UnreadCount")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("UnreadCount", &status, time.Now())

	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE (c.buyer_id = ? OR c.seller_id = ?) AND m.sender_id <> ? AND m.read_at IS NULL
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, userID, userID).Scan(&count); err != nil {
		recordError(span, &status, err)
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
