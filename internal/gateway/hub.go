package gateway

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/leadreach/internal/logging"
)

const (
	writeTimeout   = 5 * time.Second
	sendQueueDepth = 64
)

// Filter narrows the lifecycle events a subscriber receives. Zero values
// match everything.
type Filter struct {
	ThreadID string
	Events   map[string]bool
}

// ParseFilter reads ?thread= and a comma separated ?events= list.
func ParseFilter(q url.Values) Filter {
	f := Filter{ThreadID: strings.TrimSpace(q.Get("thread"))}
	for _, ev := range strings.Split(q.Get("events"), ",") {
		if ev = strings.TrimSpace(ev); ev != "" {
			if f.Events == nil {
				f.Events = make(map[string]bool)
			}
			f.Events[ev] = true
		}
	}
	return f
}

// Match reports whether an event with the given data passes the filter.
func (f Filter) Match(event string, data map[string]any) bool {
	if len(f.Events) > 0 && !f.Events[event] {
		return false
	}
	if f.ThreadID != "" {
		id, _ := data["threadId"].(string)
		return id == f.ThreadID
	}
	return true
}

// Subscriber is a connected event-stream client. Frames are queued and
// written by the subscriber's own goroutine so publishers never block on
// the network.
type Subscriber struct {
	ConnID      string
	Remote      string
	Filter      Filter
	ConnectedAt time.Time

	socket  *websocket.Conn
	queue   chan Frame
	done    chan struct{}
	writeMu sync.Mutex // serializes socket writes
	mu      sync.Mutex // guards closed and the queue send
	closed  bool
}

// NewSubscriber wraps an upgraded connection.
func NewSubscriber(conn *websocket.Conn, remote string, filter Filter) *Subscriber {
	return newSubscriber(conn, remote, filter, sendQueueDepth)
}

func newSubscriber(conn *websocket.Conn, remote string, filter Filter, depth int) *Subscriber {
	return &Subscriber{
		ConnID:      uuid.New().String(),
		Remote:      remote,
		Filter:      filter,
		ConnectedAt: time.Now(),
		socket:      conn,
		queue:       make(chan Frame, depth),
		done:        make(chan struct{}),
	}
}

// Send writes a frame directly with a bounded deadline. It is used for the
// hello frame before the write loop starts.
func (s *Subscriber) Send(frame Frame) error {
	select {
	case <-s.done:
		return ErrClientClosed
	default:
	}
	return s.write(frame)
}

func (s *Subscriber) write(frame Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.socket.WriteJSON(frame)
}

// Enqueue hands a frame to the write loop without blocking. It reports
// false when the subscriber is closed or its queue is full.
func (s *Subscriber) Enqueue(frame Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- frame:
		return true
	default:
		return false
	}
}

// writeLoop drains the queue until the subscriber closes or a write fails.
func (s *Subscriber) writeLoop(onFail func(error)) {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.queue:
			if err := s.write(f); err != nil {
				select {
				case <-s.done:
				default:
					onFail(err)
				}
				return
			}
		}
	}
}

// Close closes the connection once.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if s.socket == nil {
		return nil
	}
	return s.socket.Close()
}

// Hub fans lifecycle events out to subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
	log  *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{subs: make(map[string]*Subscriber), log: log}
}

// Add registers a subscriber and starts its write loop.
func (h *Hub) Add(s *Subscriber) {
	h.mu.Lock()
	h.subs[s.ConnID] = s
	h.mu.Unlock()
	if s.socket != nil {
		go s.writeLoop(func(err error) {
			h.log.Warn().Err(err).Str("connId", s.ConnID).Msg("dropping subscriber")
			h.drop(s)
		})
	}
	h.log.Info().
		Str("connId", s.ConnID).
		Str("remote", s.Remote).
		Str("thread", s.Filter.ThreadID).
		Msg("subscriber connected")
}

func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	_, ok := h.subs[connID]
	delete(h.subs, connID)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.log.Info().Str("connId", connID).Msg("subscriber disconnected")
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish encodes the event once and queues it for every matching
// subscriber. A subscriber whose queue is full is dropped. It returns the
// number of subscribers the frame was queued for.
func (h *Hub) Publish(event string, data map[string]any, seq int64) int {
	h.mu.RLock()
	var targets []*Subscriber
	for _, s := range h.subs {
		if s.Filter.Match(event, data) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	f, err := NewEvent(event, data, seq)
	if err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("encoding event failed")
		return 0
	}
	queued := 0
	for _, s := range targets {
		if !s.Enqueue(f) {
			h.log.Warn().Str("connId", s.ConnID).Msg("subscriber too slow, dropping")
			h.drop(s)
			continue
		}
		queued++
	}
	return queued
}

func (h *Hub) drop(s *Subscriber) {
	h.Remove(s.ConnID)
	s.Close()
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		s.Close()
		delete(h.subs, id)
	}
}
