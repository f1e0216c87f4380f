package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers a single event to the broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops events; used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

// AMQPPublisher publishes persistent messages to a durable queue so audit
// events survive broker restarts.
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPPublisher(url, queueName string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Declare is idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queueName}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.At,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Dispatcher decouples request handlers from the broker: Enqueue never
// blocks, the consumer goroutine retries a bounded number of times, and
// failures are logged rather than surfaced. A rejected login because the
// audit broker is down would invert the availability contract.
type Dispatcher struct {
	publisher Publisher
	events    chan Event
	done      chan struct{}
	retries   int
}

func NewDispatcher(publisher Publisher, buffer, retries int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	if retries < 0 {
		retries = 0
	}
	d := &Dispatcher{
		publisher: publisher,
		events:    make(chan Event, buffer),
		done:      make(chan struct{}),
		retries:   retries,
	}
	go d.run()
	return d
}

// Enqueue is fire-and-forget. When the buffer is full the event is dropped
// with a warning; a missing audit entry is acceptable, a stalled request
// handler is not.
func (d *Dispatcher) Enqueue(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case d.events <- event:
	default:
		slog.Warn("audit queue buffer full, dropping event", "type", event.Type)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := d.publisher.Publish(ctx, event)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.retries {
			slog.Warn("audit event publish failed, giving up", "type", event.Type, "attempts", attempt+1, "error", err)
			return
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
}

// Close drains buffered events, then closes the publisher.
func (d *Dispatcher) Close() error {
	close(d.events)
	<-d.done
	return d.publisher.Close()
}
