package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// ErrClosed is returned by Subscribe after the client has been shut down.
var ErrClosed = errors.New("realtime client closed")

// eventEnvelope is the wire frame pushed by the transport.
type eventEnvelope struct {
	Event   string          `json:"event"`
	Table   string          `json:"table"`
	Payload json.RawMessage `json:"payload"`
}

// subscribeCommand is sent to the transport when interest is registered.
type subscribeCommand struct {
	Action string `json:"action"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// Client is a long-lived websocket connection to the push transport. Inbound
// insert frames are validated at the boundary and fanned out to matching
// subscriptions via bounded queues; the read loop itself never runs consumer
// logic.
type Client struct {
	url   string
	token string

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   []*Subscription
	closed bool
	cancel context.CancelFunc
}

// Dial connects to the push transport and starts the read loop. The
// connection is re-established with exponential backoff on failure and all
// live subscriptions are replayed to the server.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	ctx, span := otel.Tracer("chat-sync/realtime").Start(ctx, "realtime.dial")
	defer span.End()

	client := &Client{url: url, token: token}
	conn, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	client.cancel = cancel
	client.mu.Lock()
	client.conn = conn
	client.mu.Unlock()

	go client.readLoop(runCtx)
	return client, nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	header := map[string][]string{}
	if c.token != "" {
		header["Authorization"] = []string{"Bearer " + c.token}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	return conn, err
}

// Subscribe registers interest in insert events for a table, optionally
// filtered by channel id. The handler runs on the subscription's own
// goroutine, never on the transport read loop.
func (c *Client) Subscribe(table, channelFilter string, handler InsertHandler) (*Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	sub := newSubscription(c, table, channelFilter, handler)
	c.subs = append(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()

	observability.IncSubscriptionsActive()
	if conn != nil {
		if err := conn.WriteJSON(subscribeCommand{Action: "subscribe", Table: table, Filter: channelFilter}); err != nil {
			log.Printf("realtime subscribe write failed: %v", err)
		}
	}
	return sub, nil
}

func (c *Client) removeSubscription(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("realtime read error, reconnecting: %v", err)
			if !c.reconnect(ctx) {
				return
			}
			continue
		}
		c.dispatch(data)
	}
}

// dispatch decodes one frame and fans it out. Malformed payloads are logged
// and dropped, never propagated to subscribers.
func (c *Client) dispatch(data []byte) {
	var envelope eventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Printf("realtime envelope decode failed: %v", err)
		observability.IncRealtimeEvent("invalid")
		return
	}
	if envelope.Event != "INSERT" {
		return
	}

	var ev models.InsertEvent
	if err := json.Unmarshal(envelope.Payload, &ev); err != nil {
		log.Printf("realtime payload decode failed: %v", err)
		observability.IncRealtimeEvent("invalid")
		return
	}
	if err := ev.Validate(); err != nil {
		log.Printf("realtime payload rejected: %v", err)
		observability.IncRealtimeEvent("invalid")
		return
	}

	c.mu.Lock()
	subs := make([]*Subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		if sub.matches(envelope.Table, ev) {
			sub.enqueue(ev)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff and jitter
// and replays every live subscription. Returns false once the client closes.
func (c *Client) reconnect(ctx context.Context) bool {
	delay := reconnectBaseDelay
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay + time.Duration(rand.Int63n(int64(delay/2+1)))):
		}

		conn, err := c.connect(ctx)
		if err != nil {
			log.Printf("realtime reconnect failed: %v", err)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return false
		}
		c.conn = conn
		subs := make([]*Subscription, len(c.subs))
		copy(subs, c.subs)
		c.mu.Unlock()

		for _, sub := range subs {
			if err := conn.WriteJSON(subscribeCommand{Action: "subscribe", Table: sub.table, Filter: sub.filter}); err != nil {
				log.Printf("realtime resubscribe write failed: %v", err)
			}
		}
		log.Printf("realtime reconnected url=%s subscriptions=%d", c.url, len(subs))
		return true
	}
}

// Close shuts down the connection and stops the read loop. Subscriptions are
// left to their owners to unsubscribe.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
