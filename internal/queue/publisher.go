package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
)

// Publisher enqueues a JSON payload on a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// AMQPPublisher opens a connection per message.  Publishing is rare
// (exports and reset mails), so no connection is held open.
type AMQPPublisher struct {
	URL string
}

func NewAMQPPublisher(url string) *AMQPPublisher { return &AMQPPublisher{URL: url} }

// Publish declares queue and sends payload as a persistent message.
// Errors are logged and returned so callers decide whether to fail the
// request.
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, payload any) error {
	log := logger.WithContext(ctx).With(zap.String("queue", queue))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", queue, err)
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Warn("rabbitmq dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch, queue); err != nil {
		log.Warn("rabbitmq queue declare failed", zap.Error(err))
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Warn("rabbitmq publish failed", zap.Error(err))
		return err
	}
	return nil
}

func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	return ch.QueueDeclare(queue, true, false, false, false, nil)
}
