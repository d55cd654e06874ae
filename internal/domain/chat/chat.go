// Package chat defines the per-market chat message record.
package chat

import "time"

// MessageType classifies a chat message.
type MessageType string

const (
	TypeGeneral     MessageType = "general"
	TypeAnalysis    MessageType = "analysis"
	TypePrediction  MessageType = "prediction"
	TypeQuestion    MessageType = "question"
	TypeCelebration MessageType = "celebration"
	TypeWarning     MessageType = "warning"
)

// Message is one entry in a market's append-only chat log. Replies reference
// other message ids; threading is flat (a reply cannot itself have replies).
type Message struct {
	ID          string      `json:"id"`
	MarketID    string      `json:"market_id"`
	Sender      string      `json:"sender"`
	Message     string      `json:"message"`
	MessageType MessageType `json:"message_type"`
	Timestamp   time.Time   `json:"timestamp"`
	Replies     []string    `json:"replies"`
	Likes       int         `json:"likes"`
	IsModerated bool        `json:"is_moderated"`
}
