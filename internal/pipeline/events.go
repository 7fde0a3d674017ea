package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/born-ml/livedepth/internal/depthstats"
	"github.com/born-ml/livedepth/internal/gpu"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("pipeline: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("pipeline: subscriber id not found")

	// ErrTopicClosed is returned when subscribing to a disposed pipeline's topics.
	ErrTopicClosed = errors.New("pipeline: topic closed")
)

// ColorEvent announces the normalized color frame of a tick.
// Buffer is shared and is overwritten by the next tick.
type ColorEvent struct {
	Seq       uint64
	Timestamp time.Time
	Buffer    *gpu.Buffer
}

// ResizeEvent carries the aspect ratio (width/height) of the source frame.
type ResizeEvent struct {
	Seq          uint64
	AspectRatio  float64
	SourceWidth  int
	SourceHeight int
}

// DepthEvent announces a solved depth map. Buffer is shared and is
// overwritten by the next tick; Values is a private copy of its contents,
// pixel (x, y) at y*Width+x.
type DepthEvent struct {
	Seq       uint64
	Timestamp time.Time
	Buffer    *gpu.Buffer
	Values    []float32
	Width     int
	Height    int
}

// ExtentsEvent carries the depth range of a tick.
type ExtentsEvent struct {
	Seq     uint64
	Extents depthstats.Extents
}

// Events groups the four per-tick notification topics.
type Events struct {
	ColorReady   Topic[ColorEvent]
	ImageResized Topic[ResizeEvent]
	DepthSolved  Topic[DepthEvent]
	DepthExtents Topic[ExtentsEvent]
}

func (e *Events) close() {
	e.ColorReady.close()
	e.ImageResized.close()
	e.DepthSolved.close()
	e.DepthExtents.close()
}

// TopicStats contains global and per-subscriber delivery counters.
type TopicStats struct {
	Published   uint64
	Sent        uint64
	Dropped     uint64
	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks delivery for a single subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriberStats struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Topic fans values out to subscriber channels. Publish never blocks: a
// value is dropped for any subscriber whose channel is full.
// The zero value is ready to use.
type Topic[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- T
	stats       map[string]*subscriberStats
	closed      bool
	published   atomic.Uint64
}

// Subscribe registers ch under id.
func (t *Topic[T]) Subscribe(id string, ch chan<- T) error {
	if ch == nil {
		return errors.New("pipeline: subscriber channel cannot be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTopicClosed
	}
	if t.subscribers == nil {
		t.subscribers = make(map[string]chan<- T)
		t.stats = make(map[string]*subscriberStats)
	}
	if _, exists := t.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	t.subscribers[id] = ch
	t.stats[id] = &subscriberStats{}
	return nil
}

// Unsubscribe removes a subscriber. Its channel is not closed.
func (t *Topic[T]) Unsubscribe(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(t.subscribers, id)
	delete(t.stats, id)
	return nil
}

// Publish delivers v to every subscriber with room in its channel.
// Publishing on a closed topic is a no-op.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}
	t.published.Add(1)

	for id, ch := range t.subscribers {
		select {
		case ch <- v:
			t.stats[id].sent.Add(1)
		default:
			t.stats[id].dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the delivery counters.
func (t *Topic[T]) Stats() TopicStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := TopicStats{
		Published:   t.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(t.stats)),
	}
	for id, s := range t.stats {
		sub := SubscriberStats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
		stats.Subscribers[id] = sub
		stats.Sent += sub.Sent
		stats.Dropped += sub.Dropped
	}
	return stats
}

// close drops all subscribers and rejects new ones.
func (t *Topic[T]) close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.subscribers = nil
	t.stats = nil
}
