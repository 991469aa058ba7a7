package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/clarity-chat/internal/leads"
)

// AttemptHeader counts deliveries of a message across retries.
const AttemptHeader = "x-attempt"

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishLeadCaptured(ctx context.Context, ev leads.CapturedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return publish(ctx, p.ch, p.queue, Message(body, 1, 0))
}

// Message builds a persistent json delivery. A positive ttl sets the
// per-message expiration used by the retry queue.
func Message(body []byte, attempt int, ttl time.Duration) amqp.Publishing {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{AttemptHeader: int32(attempt)},
	}
	if ttl > 0 {
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}
	return msg
}

// Attempt reads the delivery counter. Missing or non-positive values read as 1.
func Attempt(headers amqp.Table) int {
	n := 1
	switch v := headers[AttemptHeader].(type) {
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case int:
		n = v
	}
	if n < 1 {
		return 1
	}
	return n
}

// Backoff doubles base for every attempt after the first, capped at limit.
func Backoff(base time.Duration, attempt int, limit time.Duration) time.Duration {
	if base <= 0 {
		return limit
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

// Retry republishes body onto the retry queue; it returns to the main queue
// once ttl elapses.
func Retry(ctx context.Context, ch *amqp.Channel, queue string, body []byte, attempt int, ttl time.Duration) error {
	_, retryQ, _ := Names(queue)
	return publish(ctx, ch, retryQ, Message(body, attempt, ttl))
}

func publish(ctx context.Context, ch *amqp.Channel, routingKey string, msg amqp.Publishing) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(cctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,
		false,
		msg,
	)
}
