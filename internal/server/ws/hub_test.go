package ws

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adcal/slotmarket/internal/domain"
)

type fakeBus struct {
	msgs chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{msgs: make(chan []byte, 16)}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.msgs <- payload
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.msgs, nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func newTestHub(t *testing.T) (*Hub, *fakeBus, context.CancelFunc, chan error) {
	t.Helper()
	bus := newFakeBus()
	hub := NewHub(bus, slog.New(slog.DiscardHandler), Config{Mode: "standalone", Days: 3})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- hub.Run(ctx) }()
	return hub, bus, cancel, runErr
}

func register(t *testing.T, hub *Hub) *client {
	t.Helper()
	c := &client{hub: hub, send: make(chan []byte, sendBuffer)}
	select {
	case hub.register <- c:
	case <-time.After(time.Second):
		t.Fatal("register blocked")
	}
	return c
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub, bus, cancel, _ := newTestHub(t)
	defer cancel()

	c := register(t, hub)
	require.NoError(t, bus.Publish(context.Background(), domain.EventChannel, []byte(`{"day":1,"event":"slot_sold"}`)))

	select {
	case frame := <-c.send:
		require.JSONEq(t, `{"day":1,"event":"slot_sold"}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestHubHonorsDayFilter(t *testing.T) {
	hub, bus, cancel, _ := newTestHub(t)
	defer cancel()

	c := register(t, hub)
	c.applyFilter(filterMsg{Action: "filter", Days: []int{2}})

	require.NoError(t, bus.Publish(context.Background(), domain.EventChannel, []byte(`{"day":0}`)))
	require.NoError(t, bus.Publish(context.Background(), domain.EventChannel, []byte(`{"day":2}`)))

	select {
	case frame := <-c.send:
		require.JSONEq(t, `{"day":2}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}

	c.applyFilter(filterMsg{Action: "clear"})
	require.True(t, c.wantsDay(0))
}

func TestHubShutdownReleasesClients(t *testing.T) {
	hub, _, cancel, runErr := newTestHub(t)

	c := register(t, hub)
	cancel()

	select {
	case err := <-runErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return on cancel")
	}

	// The hub closes every send channel on the way out.
	select {
	case _, open := <-c.send:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("send channel left open")
	}

	// A read pump finishing after shutdown must not hang on unregister.
	released := make(chan struct{})
	go func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after shutdown")
	}
}
