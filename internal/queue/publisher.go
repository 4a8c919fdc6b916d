package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBrokerUnavailable is returned without dialing while another caller is
// reconnecting or a recent dial failed.
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

const (
	defaultDialTimeout = 2 * time.Second
	defaultRedialDelay = 5 * time.Second
)

// Publisher publishes BookingEvents to a durable RabbitMQ queue through the
// default exchange.  The connection is opened lazily and re-opened after a
// failure, so a broker outage never blocks startup.  Only one caller dials
// at a time, bounded by the dial timeout and the caller's deadline; the
// others fail fast with ErrBrokerUnavailable.  It is safe for concurrent use.
type Publisher struct {
	url   string
	queue string

	dialTimeout time.Duration
	redialDelay time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	dialing  bool
	nextDial time.Time
	closed   bool
}

// NewPublisher returns a publisher for the given broker URL and queue name.
func NewPublisher(url, queue string) *Publisher {
	return &Publisher{
		url:         url,
		queue:       queue,
		dialTimeout: defaultDialTimeout,
		redialDelay: defaultRedialDelay,
	}
}

// channel returns an open channel, dialing and declaring the queue when
// needed.  The dial runs without p.mu held.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: publisher closed", ErrBrokerUnavailable)
	case p.ch != nil && !p.ch.IsClosed():
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	case p.dialing:
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: reconnect in progress", ErrBrokerUnavailable)
	case time.Now().Before(p.nextDial):
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: next dial at %s", ErrBrokerUnavailable, p.nextDial.Format(time.RFC3339))
	}
	p.reset()
	p.dialing = true
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		p.nextDial = time.Now().Add(p.redialDelay)
		return nil, err
	}
	if p.closed {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: publisher closed", ErrBrokerUnavailable)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dial connects within the dial timeout or the context deadline, whichever
// comes first, and declares the queue.
func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timeout := p.dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	if timeout <= 0 {
		return nil, nil, fmt.Errorf("rabbitmq: dial: %w", context.DeadlineExceeded)
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq: queue declare: %w", err)
	}
	return conn, ch, nil
}

// reset drops the current connection.  Callers hold p.mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Publish sends ev as a persistent JSON message.  Errors are returned so the
// caller can log them; the booking itself is already committed.
func (p *Publisher) Publish(ctx context.Context, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Type:         ev.Type,
		MessageId:    ev.ReservationID + ":" + ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.mu.Lock()
		if p.ch == ch {
			p.reset()
		}
		p.mu.Unlock()
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}
