package app

import (
	"sync"
	"time"

	"github.com/petems/consult-recorder/internal/analysis"
)

// Event types sent to control surfaces.
const (
	EventAudioLevel    = "audio_level"
	EventState         = "state"
	EventAudioAnalysis = "audio_analysis"
)

// Analysis event statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Event is one message on the outbound stream.
type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Level     *int             `json:"level,omitempty"`
	State     string           `json:"state,omitempty"`
	Status    string           `json:"status,omitempty"`
	Data      *analysis.Result `json:"data,omitempty"`
	Message   string           `json:"message,omitempty"`
	Time      time.Time        `json:"time"`
}

// subscriberBuffer holds ~25 s of level events for a stalled reader.
const subscriberBuffer = 256

// Broadcaster fans events out to subscribers. Publish never blocks: a
// subscriber that falls behind loses events rather than stalling the
// capture path.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, drop
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
