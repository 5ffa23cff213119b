package domain

import "time"

const MaxMessageLength = 2000

// Chat is a conversation between the buyer and the seller of one ad.
type Chat struct {
	ID            int64      `json:"id"`
	AdID          int64      `json:"ad_id"`
	BuyerID       int64      `json:"buyer_id"`
	SellerID      int64      `json:"seller_id"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (c *Chat) HasParticipant(userID int64) bool {
	return userID != 0 && (c.BuyerID == userID || c.SellerID == userID)
}

// Counterpart returns the other participant, or 0 if userID is not in the chat.
func (c *Chat) Counterpart(userID int64) int64 {
	switch userID {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	}
	return 0
}

func (c *Chat) Participants() []int64 {
	return []int64{c.BuyerID, c.SellerID}
}

type ChatSummary struct {
	Chat
	AdTitle     string `json:"ad_title"`
	UnreadCount int    `json:"unread_count"`
}

// MessageCursor tells a polling client where it left off. AfterID is exact;
// Since alone can skip messages that share a timestamp with the last one seen.
type MessageCursor struct {
	Since   time.Time
	AfterID int64
}

func (c MessageCursor) IsZero() bool {
	return c.Since.IsZero() && c.AfterID == 0
}

type Message struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chat_id"`
	SenderID  int64      `json:"sender_id"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
