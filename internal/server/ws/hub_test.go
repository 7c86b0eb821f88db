package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// chanBus hands out one Go channel per subscribed bus channel.
type chanBus struct {
	mu     sync.Mutex
	subs   map[string]chan []byte
	all    sync.WaitGroup
	stream []domain.StreamMessage
	since  string
}

func newChanBus() *chanBus {
	b := &chanBus{subs: map[string]chan []byte{}}
	b.all.Add(len(Channels))
	return b
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 4)
	b.subs[channel] = ch
	b.all.Done()
	return ch, nil
}

func (b *chanBus) send(channel string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] <- payload
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(_ context.Context, stream, since string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if stream != domain.RunEventStream {
		return nil, nil
	}
	b.since = since
	return b.stream, nil
}
func (b *chanBus) PublishEvent(context.Context, domain.RunEvent) error { return nil }

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubRelaysRunEvents(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	bus.all.Wait()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	assert.Equal(t, "service_status", env.Type)
	assert.Contains(t, string(env.Payload), `"mode":"server"`)

	bus.send(domain.ChannelRunCompleted, []byte(`{"run_id":"r1"}`))
	env = readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelRunCompleted, env.Type)
	assert.JSONEq(t, `{"run_id":"r1"}`, string(env.Payload))
}

func TestHubReplaysStoredEvents(t *testing.T) {
	bus := newChanBus()
	bus.stream = []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"type":"run.completed","run_id":"r1"}`)},
		{ID: "2-0", Payload: []byte(`{"type":"alert.senior_impaired","run_id":"r1"}`)},
		{ID: "3-0", Payload: []byte(`{"type":"run.completed","run_id":"r2"}`)},
	}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	bus.all.Wait()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "service_status", readEnvelope(t, conn).Type)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelAlertSeniorImpaired}}))
	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "replay", Since: "0-5"}))

	first := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelRunCompleted, first.Type)
	assert.Equal(t, "1-0", first.ID)
	second := readEnvelope(t, conn)
	assert.Equal(t, "3-0", second.ID)

	bus.mu.Lock()
	assert.Equal(t, "0-5", bus.since)
	bus.mu.Unlock()
}

func TestHubStoppedDoesNotBlock(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()
	bus.all.Wait()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "service_status", readEnvelope(t, conn).Type)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// The open client is closed by the hub and its read loop leaves without
	// a hub to receive the unregister.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	left := make(chan struct{})
	go func() {
		hub.leave(&client{hub: hub})
		assert.False(t, hub.join(&client{hub: hub}))
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leave/join blocked on a stopped hub")
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestIsSubscribedPrefix(t *testing.T) {
	c := &client{subs: map[string]bool{"alert.*": true}}
	assert.True(t, c.isSubscribed(domain.ChannelAlertSeniorImpaired))
	assert.False(t, c.isSubscribed(domain.ChannelRunCompleted))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelRunCompleted}})
	assert.True(t, c.isSubscribed(domain.ChannelRunCompleted))
	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"alert.*"}})
	assert.False(t, c.isSubscribed(domain.ChannelAlertSeniorImpaired))
}
