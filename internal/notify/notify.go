// Package notify pushes new-message events for recipients with no live
// connection onto a message broker, where downstream push workers pick them
// up. Publishing is best effort: a lost notification costs a push, never a
// message.
package notify

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/pkg/json"
)

const (
	exchange       = "ripple.notifications"
	publishTimeout = 5 * time.Second
)

type offlineEvent struct {
	UserID   string    `json:"userID"`
	RoomID   string    `json:"roomID"`
	SenderID string    `json:"senderID"`
	Body     string    `json:"body,omitempty"`
	SentAt   time.Time `json:"sentAt"`
}

// AMQPNotifier publishes offline events to a topic exchange, routed by
// recipient.
type AMQPNotifier struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

// NewAMQPNotifier dials the broker and declares the exchange.
func NewAMQPNotifier(url string, log *zap.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPNotifier{conn: conn, ch: ch, log: log.With(zap.String("module", "notify"))}, nil
}

// MessageCreated implements chat.Notifier.
func (n *AMQPNotifier) MessageCreated(ctx context.Context, userID string, m *chat.Message) {
	body, err := json.Marshal(offlineEvent{
		UserID:   userID,
		RoomID:   m.RoomID,
		SenderID: m.SenderID,
		Body:     m.Body,
		SentAt:   m.CreatedAt,
	})
	if err != nil {
		n.log.Warn("encoding offline event failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = n.ch.PublishWithContext(ctx, exchange, "user."+userID, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		n.log.Warn("publishing offline event failed",
			zap.String("user", userID), zap.String("room", m.RoomID), zap.Error(err))
	}
}

// Close tears down the channel and connection.
func (n *AMQPNotifier) Close() error {
	if err := n.ch.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

// MessageCreated implements chat.Notifier.
func (Nop) MessageCreated(context.Context, string, *chat.Message) {}
