// Package push keeps one realtime topic subscription open for a tracked job
// and hands every message received on it to a callback.
package push

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	hub "github.com/vrsandeep/bom-preview/internal/websocket"
)

// DefaultReconnectDelay is how long the adapter waits before redialing a
// dropped or refused connection.
const DefaultReconnectDelay = 2 * time.Second

// Adapter is a single subscription bound to one (origin, topic) pair.
// Connection failures are logged and retried; they are never reported to the
// caller, since the poll channel covers for them.
type Adapter struct {
	name           string
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	mu     sync.Mutex
	topic  string
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithDialer replaces the default websocket dialer (e.g. to attach a cookie jar).
func WithDialer(d *websocket.Dialer) Option {
	return func(a *Adapter) { a.dialer = d }
}

// WithReconnectDelay sets how long to wait before redialing.
func WithReconnectDelay(d time.Duration) Option {
	return func(a *Adapter) { a.reconnectDelay = d }
}

// New creates an adapter for the realtime endpoint at origin+path. An http(s)
// origin is mapped to ws(s). name tags log lines.
func New(name, origin, path string, opts ...Option) *Adapter {
	a := &Adapter{
		name:           name,
		url:            socketURL(origin, path),
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func socketURL(origin, path string) string {
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return origin + path
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// Subscribe opens the connection and subscribes to topic, delivering each
// message's data to onMessage. Any subscription already held by this adapter
// is torn down first so a topic is never delivered twice.
func (a *Adapter) Subscribe(topic string, onMessage func(json.RawMessage)) {
	a.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.topic = topic
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(ctx, topic, onMessage)
	}()
}

func (a *Adapter) run(ctx context.Context, topic string, onMessage func(json.RawMessage)) {
	for {
		if err := a.session(ctx, topic, onMessage); err != nil && ctx.Err() == nil {
			log.Printf("[push:%s] connection error: %v", a.name, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.reconnectDelay):
		}
	}
}

// session runs one connection until it drops or ctx is cancelled.
func (a *Adapter) session(ctx context.Context, topic string, onMessage func(json.RawMessage)) error {
	conn, _, err := a.dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return err
	}

	if err := a.write(conn, hub.Frame{Action: hub.ActionSubscribe, Topic: topic}); err != nil {
		conn.Close()
		return err
	}

	a.mu.Lock()
	if ctx.Err() != nil {
		a.mu.Unlock()
		conn.Close()
		return nil
	}
	a.conn = conn
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.conn == conn {
			a.conn = nil
		}
		a.mu.Unlock()
		conn.Close()
	}()

	log.Printf("[push:%s] connected %s topic=%s", a.name, a.url, topic)

	for {
		var frame hub.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if frame.Topic != topic {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		onMessage(frame.Data)
	}
}

func (a *Adapter) write(conn *websocket.Conn, frame hub.Frame) error {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(frame)
}

// Stop unsubscribes the topic and disconnects. It returns once no further
// message can be delivered, and is safe to call any number of times. It must
// not be called from inside the onMessage callback.
func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	conn := a.conn
	topic := a.topic
	a.cancel = nil
	a.conn = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		// Best effort; the connection is closed regardless.
		_ = a.write(conn, hub.Frame{Action: hub.ActionUnsubscribe, Topic: topic})
		conn.Close()
	}
	// A concurrent Stop may have taken cancel; wait for the reader either way.
	a.wg.Wait()
}

// Active reports whether a subscription is currently held.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}
