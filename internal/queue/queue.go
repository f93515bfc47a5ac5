package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// attemptsHeader carries the delivery attempt counter across republishes,
// since plain nack-requeue gives consumers no way to count retries.
const attemptsHeader = "x-attempts"

// Queue wraps an AMQP connection with durable queues, persistent
// publishing and publisher confirms. Messages survive a broker restart
// once Publish has returned.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queues  map[string]amqp.Queue
}

func New(url string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Publish must not return before the broker has persisted the message.
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publish confirmations: %w", err)
	}

	return &Queue{
		conn:    conn,
		channel: channel,
		queues:  make(map[string]amqp.Queue),
	}, nil
}

// DLQName returns the dead-letter queue paired with a queue.
func DLQName(name string) string { return name + ".dlq" }

// Declare idempotently creates a durable queue and its dead-letter
// companion. Safe to call on every producer and consumer startup.
func (q *Queue) Declare(name string) error {
	for _, n := range []string{name, DLQName(name)} {
		queue, err := q.channel.QueueDeclare(
			n,     // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", n, err)
		}
		q.queues[n] = queue
	}
	return nil
}

// Publish sends a persistent message and waits for the broker confirm.
func (q *Queue) Publish(ctx context.Context, name string, body []byte) error {
	return q.PublishWithAttempts(ctx, name, body, 0)
}

// PublishWithAttempts publishes with an explicit attempt counter, used
// when a consumer requeues a failed delivery. Each publish waits on its
// own deferred confirmation; a NotifyPublish listener per call would
// leak listeners the channel keeps fanning out to.
func (q *Queue) PublishWithAttempts(ctx context.Context, name string, body []byte, attempts int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	confirmation, err := q.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		"",    // exchange
		name,  // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{attemptsHeader: int32(attempts)},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %q: %w", name, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish confirmation for %q: %w", name, err)
	}
	if !acked {
		return fmt.Errorf("broker rejected publish to %q", name)
	}
	return nil
}

// Consume returns the delivery stream for a queue. Prefetch is one so a
// single worker instance fully processes a job before the next delivery;
// scaling is done by running more instances, not by prefetching.
// Acknowledgment is the caller's responsibility.
func (q *Queue) Consume(name string) (<-chan amqp.Delivery, error) {
	if err := q.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		name,  // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer on %q: %w", name, err)
	}
	return msgs, nil
}

// Attempts reads the retry counter from a delivery. Messages published
// by components unaware of the header count as first attempts.
func Attempts(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}
	switch v := d.Headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (q *Queue) Close() {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
