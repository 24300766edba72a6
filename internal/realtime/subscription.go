package realtime

import (
	"log"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// defaultQueueSize bounds the per-subscription event queue. The transport read
// loop never blocks on a slow consumer; events beyond the bound are dropped
// and counted.
const defaultQueueSize = 256

// InsertHandler consumes one validated insert event.
type InsertHandler func(ev models.InsertEvent)

// Subscription is a live interest registration for one table, optionally
// filtered to a single channel. Events are drained by a dedicated goroutine.
type Subscription struct {
	table   string
	filter  string
	handler InsertHandler
	queue   chan models.InsertEvent
	done    chan struct{}
	client  *Client
}

func newSubscription(client *Client, table, filter string, handler InsertHandler) *Subscription {
	sub := &Subscription{
		table:   table,
		filter:  filter,
		handler: handler,
		queue:   make(chan models.InsertEvent, defaultQueueSize),
		done:    make(chan struct{}),
		client:  client,
	}
	go sub.run()
	return sub
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			s.handler(ev)
		}
	}
}

// matches reports whether an event belongs to this subscription.
func (s *Subscription) matches(table string, ev models.InsertEvent) bool {
	if table != s.table {
		return false
	}
	return s.filter == "" || s.filter == ev.ChannelID
}

// enqueue hands the event to the consumer goroutine without blocking.
func (s *Subscription) enqueue(ev models.InsertEvent) {
	select {
	case s.queue <- ev:
	default:
		log.Printf("realtime subscription queue full, dropping event id=%s", ev.ID)
		observability.IncRealtimeDropped()
	}
}

// Unsubscribe deregisters the subscription and stops its consumer.
func (s *Subscription) Unsubscribe() {
	s.client.removeSubscription(s)
	close(s.done)
	observability.DecSubscriptionsActive()
}
