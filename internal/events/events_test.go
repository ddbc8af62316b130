package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
	done   chan struct{}
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	close(r.done)
	return r.err
}

func (r *recorder) Close() error { return nil }

func TestNewEventJSON(t *testing.T) {
	e := NewEvent(SaleCompleted, "abc123", "INV-1", decimal.RequireFromString("1500"))
	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var back map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "sale.completed", back["type"])
	assert.Equal(t, "abc123", back["tenant"])
	assert.Equal(t, "1500", back["amount"])
	assert.NotEmpty(t, back["id"])
}

func TestPublishAsyncLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := &recorder{err: errors.New("broker down"), done: make(chan struct{})}

	PublishAsync(rec, zap.New(core), NewEvent(SaleReturned, "t1", "RET-1", decimal.Zero))

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not published")
	}
	assert.Eventually(t, func() bool { return logs.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Event not published", logs.All()[0].Message)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}

type fakeChannel struct {
	mu      sync.Mutex
	closed  bool
	fail    error
	entered chan struct{}
	release chan struct{}
	sent    int
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, _, _ string, _, _ bool, _ amqp091.Publishing) error {
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		// The broker closes a channel on a channel-level error.
		f.closed = true
		return f.fail
	}
	f.sent++
	return nil
}

func (f *fakeChannel) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// opener hands out the given channels in order.
func opener(chans ...*fakeChannel) (func() (channel, error), *int) {
	var opened int
	return func() (channel, error) {
		if opened >= len(chans) {
			return nil, errors.New("no more channels")
		}
		ch := chans[opened]
		opened++
		return ch, nil
	}, &opened
}

func TestPublisherReplacesChannelClosedByError(t *testing.T) {
	broken := &fakeChannel{fail: errors.New("PRECONDITION_FAILED")}
	healthy := &fakeChannel{}
	open, opened := opener(broken, healthy)
	p, err := newPublisher("pos.events", 1, open, func() error { return nil })
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, p.Publish(ctx, NewEvent(SaleCompleted, "t1", "INV-1", decimal.Zero)))
	require.NoError(t, p.Publish(ctx, NewEvent(SaleCompleted, "t1", "INV-2", decimal.Zero)))

	assert.Equal(t, 2, *opened)
	assert.Equal(t, 1, healthy.sent)
	require.NoError(t, p.Close())
	assert.True(t, healthy.IsClosed())
}

func TestPublisherCloseWaitsForInflight(t *testing.T) {
	ch := &fakeChannel{entered: make(chan struct{}), release: make(chan struct{})}
	open, _ := opener(ch)
	connClosed := make(chan struct{})
	p, err := newPublisher("pos.events", 1, open, func() error { close(connClosed); return nil })
	require.NoError(t, err)

	published := make(chan error, 1)
	go func() { published <- p.Publish(context.Background(), NewEvent(SaleCompleted, "t1", "INV-1", decimal.Zero)) }()
	<-ch.entered

	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()

	select {
	case <-connClosed:
		t.Fatal("connection closed while a publish was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(ch.release)
	require.NoError(t, <-published)
	require.NoError(t, <-closed)
	<-connClosed

	assert.ErrorIs(t, p.Publish(context.Background(), Event{}), ErrPublisherClosed)
	assert.NoError(t, p.Close())
}
