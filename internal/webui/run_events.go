package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// RunEventsConfig sizes the event feed
type RunEventsConfig struct {
	HeartbeatInterval time.Duration
	SubscriberBuffer  int
	MaxSubscribers    int
	// ReplaySize is how many recent events a reconnecting subscriber may replay
	ReplaySize int
}

func defaultRunEventsConfig() *RunEventsConfig {
	return &RunEventsConfig{
		HeartbeatInterval: 30 * time.Second,
		SubscriberBuffer:  64,
		MaxSubscribers:    100,
		ReplaySize:        32,
	}
}

// RunEvent is one entry of the search run feed
type RunEvent struct {
	ID    uint64
	Type  string
	Token string
	Data  interface{}
}

type encodedEvent struct {
	id    uint64
	kind  string
	token string
	frame []byte
}

// Subscription receives encoded event frames until it is closed
type Subscription struct {
	ID     string
	Frames chan []byte
	Done   chan struct{}

	kinds  map[string]struct{}
	token  string
	closed bool
}

func (s *Subscription) wants(ev encodedEvent) bool {
	if ev.kind == EventTypeHeartbeat {
		return true
	}
	if s.token != "" && ev.token != s.token {
		return false
	}
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[ev.kind]
	return ok
}

// SubscribeOptions narrows what a subscription receives
type SubscribeOptions struct {
	// Kinds limits delivery to these event types; empty means all
	Kinds []string
	// Token follows a single run
	Token string
	// LastEventID replays retained events newer than this id
	LastEventID uint64
}

// RunEvents fans search run events out to web subscribers and retains a
// short tail so a reconnecting browser can catch up on the run it missed.
type RunEvents struct {
	mu     sync.Mutex
	config *RunEventsConfig
	logger *log.Logger
	subs   map[string]*Subscription
	recent []encodedEvent
	nextID uint64
}

// NewRunEvents creates an event feed; nil arguments select defaults
func NewRunEvents(config *RunEventsConfig, logger *log.Logger) *RunEvents {
	if config == nil {
		config = defaultRunEventsConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RunEvents{
		config: config,
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

// Publish encodes ev once and delivers it to every matching subscriber.
// Slow subscribers lose the frame rather than block the run.
func (e *RunEvents) Publish(ev RunEvent) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		e.logger.Printf("Failed to encode %s event: %v", ev.Type, err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	encoded := encodedEvent{
		id:    e.nextID,
		kind:  ev.Type,
		token: ev.Token,
		frame: eventFrame(e.nextID, ev.Type, payload),
	}

	if ev.Type != EventTypeHeartbeat && e.config.ReplaySize > 0 {
		e.recent = append(e.recent, encoded)
		if over := len(e.recent) - e.config.ReplaySize; over > 0 {
			e.recent = e.recent[over:]
		}
	}

	for _, sub := range e.subs {
		e.deliver(sub, encoded)
	}
}

func (e *RunEvents) deliver(sub *Subscription, ev encodedEvent) {
	if sub.closed || !sub.wants(ev) {
		return
	}
	select {
	case sub.Frames <- ev.frame:
	default:
		e.logger.Printf("Subscriber %s is behind, dropped event %d", sub.ID, ev.id)
	}
}

// Subscribe registers a subscriber and queues any replayed events
func (e *RunEvents) Subscribe(id string, opts SubscribeOptions) (*Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.subs) >= e.config.MaxSubscribers {
		return nil, fmt.Errorf("too many event subscribers (limit %d)", e.config.MaxSubscribers)
	}
	if _, exists := e.subs[id]; exists {
		return nil, fmt.Errorf("subscriber %s already registered", id)
	}

	sub := &Subscription{
		ID:     id,
		Frames: make(chan []byte, e.config.SubscriberBuffer+len(e.recent)),
		Done:   make(chan struct{}),
		token:  opts.Token,
	}
	if len(opts.Kinds) > 0 {
		sub.kinds = make(map[string]struct{}, len(opts.Kinds))
		for _, k := range opts.Kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	if opts.LastEventID > 0 {
		for _, ev := range e.recent {
			if ev.id > opts.LastEventID {
				e.deliver(sub, ev)
			}
		}
	}

	e.subs[id] = sub
	e.logger.Printf("Event subscriber %s joined (%d active)", id, len(e.subs))
	return sub, nil
}

// Unsubscribe removes and closes a subscriber; unknown ids are ignored
func (e *RunEvents) Unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub, ok := e.subs[id]; ok {
		closeSubscription(sub)
		delete(e.subs, id)
		e.logger.Printf("Event subscriber %s left (%d active)", id, len(e.subs))
	}
}

func closeSubscription(sub *Subscription) {
	if !sub.closed {
		sub.closed = true
		close(sub.Done)
		close(sub.Frames)
	}
}

// Run sends heartbeats until ctx ends, then closes every subscriber
func (e *RunEvents) Run(ctx context.Context) {
	ticker := time.NewTicker(e.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.closeAll()
			return
		case now := <-ticker.C:
			e.Publish(RunEvent{
				Type: EventTypeHeartbeat,
				Data: map[string]interface{}{
					"timestamp":   now.Format(time.RFC3339),
					"subscribers": e.SubscriberCount(),
				},
			})
		}
	}
}

func (e *RunEvents) closeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, sub := range e.subs {
		closeSubscription(sub)
		delete(e.subs, id)
	}
}

// SubscriberCount returns the number of live subscribers
func (e *RunEvents) SubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func eventFrame(id uint64, kind string, payload []byte) []byte {
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, kind, payload))
}
