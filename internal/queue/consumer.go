package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
)

// HandlerFunc processes one message body.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer drains one queue with a reconnect loop.
type Consumer struct {
	URL      string
	Queue    string
	Handle   HandlerFunc
	Prefetch int
	// Timeout bounds a single Handle call.
	Timeout time.Duration
}

// Run consumes until ctx is cancelled.  Lost connections are redialled
// with exponential backoff capped at 30 seconds.
func (c *Consumer) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("queue", c.Queue))
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	prefetch := c.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if _, err := declare(ch, c.Queue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

// acknowledger is the settlement surface of amqp.Delivery.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type settledDelivery struct {
	acknowledger
	body        []byte
	redelivered bool
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	c.settle(ctx, settledDelivery{acknowledger: d, body: d.Body, redelivered: d.Redelivered})
}

// settle acks a handled message.  A failed message is requeued once; a
// message that already came back is dropped so poison payloads cannot loop.
func (c *Consumer) settle(ctx context.Context, d settledDelivery) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	err := c.Handle(hctx, d.body)
	cancel()

	if err == nil {
		_ = d.Ack(false)
		return
	}
	requeue := !d.redelivered
	logger.WithContext(ctx).Error("message handling failed",
		zap.String("queue", c.Queue), zap.Bool("requeue", requeue), zap.Error(err))
	_ = d.Nack(false, requeue)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
