package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PushTarget is one device a push message should reach.
type PushTarget struct {
	DeviceToken string `json:"deviceToken"`
	DeviceType  string `json:"deviceType"`
}

// PushMessage is the payload handed to the push delivery worker.
type PushMessage struct {
	Kind    string            `json:"kind"`
	UserID  uuid.UUID         `json:"userId"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
	Targets []PushTarget      `json:"targets"`
	SentAt  time.Time         `json:"sentAt"`
}

// PushNotifier dispatches push messages to mobile devices.
type PushNotifier interface {
	Notify(ctx context.Context, msg PushMessage) error
}

// AMQPPushNotifier publishes push messages to a durable RabbitMQ queue that a
// separate delivery worker drains into APNs/FCM.
type AMQPPushNotifier struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPushNotifier(url, queue string) *AMQPPushNotifier {
	return &AMQPPushNotifier{url: url, queue: queue}
}

func (n *AMQPPushNotifier) channel() (*amqp.Channel, error) {
	if n.ch != nil && !n.ch.IsClosed() {
		return n.ch, nil
	}
	if n.conn == nil || n.conn.IsClosed() {
		conn, err := amqp.Dial(n.url)
		if err != nil {
			return nil, fmt.Errorf("amqp dial: %w", err)
		}
		n.conn = conn
	}

	ch, err := n.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	n.ch = ch
	return ch, nil
}

func (n *AMQPPushNotifier) Notify(ctx context.Context, msg PushMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ch, err := n.channel()
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.SentAt,
		MessageId:    uuid.NewString(),
		Body:         body,
	})
}

func (n *AMQPPushNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

// LogPushNotifier is used when no broker is configured. It records that a
// push was due without logging its body, which may contain a login code.
type LogPushNotifier struct{}

func (LogPushNotifier) Notify(_ context.Context, msg PushMessage) error {
	slog.Info("push notification not dispatched: no broker configured",
		"user_id", msg.UserID.String(),
		"kind", msg.Kind,
		"targets", len(msg.Targets),
	)
	return nil
}
