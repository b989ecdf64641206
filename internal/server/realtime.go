package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventNoteChanged = "note-change"
	RealtimeEventLocked      = "session-locked"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "lumina"
	realtimeBufferSize       = 16
	defaultHeartbeatInterval = 25 * time.Second
)

// RealtimeMessage is one event fanned out to the open event streams.
type RealtimeMessage struct {
	EventType  string
	ChangeKind string
	NoteIDs    []string
	Timestamp  time.Time
}

type realtimeEventPayload struct {
	Type      string    `json:"type"`
	NoteIDs   []string  `json:"note_ids"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// RealtimeDispatcher fans messages out to subscribers. A subscriber whose
// buffer is full misses the message.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
	}
}

// Subscribe registers a stream that lives until ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{stream: make(chan RealtimeMessage, d.bufferSize)}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
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

// PublishChange forwards a persisted notes change. It is meant to be passed
// as the notes service change listener.
func (d *RealtimeDispatcher) PublishChange(change notes.Change) {
	ids := make([]string, 0, len(change.NoteIDs))
	for _, id := range change.NoteIDs {
		ids = append(ids, id.String())
	}
	d.Publish(RealtimeMessage{
		EventType:  RealtimeEventNoteChanged,
		ChangeKind: string(change.Kind),
		NoteIDs:    ids,
		Timestamp:  change.Timestamp,
	})
}

// SubscriberCount reports the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}

// handleNotesEvents streams change events as server-sent events until the
// client disconnects or the session is locked.
func (h *httpHandler) handleNotesEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	interval := h.heartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
				Type:      realtimeEventHeartbeat,
				NoteIDs:   []string{},
				Timestamp: time.Now().UTC(),
				Source:    realtimeSourceBackend,
			})
			c.Writer.Flush()
		case message := <-stream:
			eventType := message.ChangeKind
			if eventType == "" {
				eventType = message.EventType
			}
			noteIDs := message.NoteIDs
			if noteIDs == nil {
				noteIDs = []string{}
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				Type:      eventType,
				NoteIDs:   noteIDs,
				Timestamp: message.Timestamp,
				Source:    realtimeSourceBackend,
			})
			c.Writer.Flush()
			if message.EventType == RealtimeEventLocked {
				return
			}
		}
	}
}
