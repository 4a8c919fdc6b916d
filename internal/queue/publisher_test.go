package queue

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedAddr returns a local address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// silentBroker accepts TCP connections and never answers the AMQP
// handshake, like a broker behind a blackholing proxy.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestPublisher_RefusedBrokerBacksOff(t *testing.T) {
	p := NewPublisher("amqp://guest:guest@"+closedAddr(t)+"/", "booking.events")
	defer p.Close()
	ev := sampleEvent(t, EventBookingCreated)

	err := p.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBrokerUnavailable)
	assert.ErrorContains(t, err, "rabbitmq: dial")

	// A recent failure is reported without dialing again.
	err = p.Publish(context.Background(), ev)
	assert.ErrorIs(t, err, ErrBrokerUnavailable)

	p.mu.Lock()
	assert.False(t, p.dialing)
	assert.True(t, p.nextDial.After(time.Now()))
	p.mu.Unlock()
}

func TestPublisher_SilentBrokerIsBoundedByDialTimeout(t *testing.T) {
	p := NewPublisher("amqp://guest:guest@"+silentBroker(t)+"/", "booking.events")
	p.dialTimeout = 200 * time.Millisecond
	defer p.Close()

	start := time.Now()
	err := p.Publish(context.Background(), sampleEvent(t, EventBookingCreated))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPublisher_SilentBrokerIsBoundedByContext(t *testing.T) {
	p := NewPublisher("amqp://guest:guest@"+silentBroker(t)+"/", "booking.events")
	p.dialTimeout = time.Minute
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, sampleEvent(t, EventBookingCreated))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	expired, cancelExpired := context.WithCancel(context.Background())
	cancelExpired()
	p.mu.Lock()
	p.nextDial = time.Time{}
	p.mu.Unlock()
	err = p.Publish(expired, sampleEvent(t, EventBookingCreated))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublisher_FailsFastWhileReconnecting(t *testing.T) {
	p := NewPublisher("amqp://guest:guest@"+closedAddr(t)+"/", "booking.events")
	p.dialing = true

	start := time.Now()
	err := p.Publish(context.Background(), sampleEvent(t, EventBookingCreated))
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.ErrorContains(t, err, "reconnect in progress")
	assert.Less(t, time.Since(start), time.Second)

	p.dialing = false
	require.NoError(t, p.Close())
	err = p.Publish(context.Background(), sampleEvent(t, EventBookingCreated))
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.ErrorContains(t, err, "publisher closed")
}
