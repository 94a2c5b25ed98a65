// Package telegram defines the messaging transport the engine runs
// against and a JSON-over-HTTP client for an MTProto userbot gateway.
// The gateway owns connect/reconnect, session auth, and flood handling;
// this side only needs to send, read bounded recent-message windows, and
// delete.
package telegram

import (
	"context"
	"time"
)

// Message is one chat message as seen through the transport.
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  int64     `json:"sender_id"`
}

// Sent identifies a just-dispatched outbound message; it is the anchor
// the correlator matches responses against.
type Sent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Client is the abstract transport capability. Recent returns messages
// newest-first; the transport offers no ordering or delivery guarantee
// beyond that.
type Client interface {
	Send(ctx context.Context, chatID int64, text string) (Sent, error)
	Recent(ctx context.Context, chatID int64, limit int) ([]Message, error)
	Delete(ctx context.Context, chatID, messageID int64) error
	Chat(ctx context.Context, chatID int64) (Chat, error)
	Dialogs(ctx context.Context) ([]Chat, error)
	Me(ctx context.Context) (Chat, error)
}
