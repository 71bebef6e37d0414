package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/drafts"
)

const (
	RealtimeEventDraftChanged = "draft-change"
	realtimeEventReady        = "ready"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "lexdraft-backend"
	realtimeHeartbeatInterval = 25 * time.Second
)

var _ drafts.ChangeNotifier = (*RealtimeDispatcher)(nil)

type RealtimeMessage struct {
	ConversationID string
	EventType      string
	Transition     drafts.Transition
	Timestamp      time.Time
}

// RealtimeDispatcher fans draft changes out to the subscribers of each conversation.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, conversationID string) (<-chan RealtimeMessage, func()) {
	if conversationID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(conversationID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(conversationID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to every subscriber of its conversation. Subscribers
// whose buffer is full miss the message.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.ConversationID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.ConversationID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// NotifyDraftChange publishes a committed history transition.
func (d *RealtimeDispatcher) NotifyDraftChange(conversationID drafts.ConversationID, transition drafts.Transition) {
	d.Publish(RealtimeMessage{
		ConversationID: conversationID.String(),
		EventType:      RealtimeEventDraftChanged,
		Transition:     transition,
		Timestamp:      d.clock().UTC(),
	})
}

func (d *RealtimeDispatcher) subscriberCount(conversationID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[conversationID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(conversationID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[conversationID]; !ok {
		d.subscribers[conversationID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[conversationID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(conversationID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[conversationID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, conversationID)
		}
	}
	d.mu.Unlock()
}
