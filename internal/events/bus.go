package events

import (
	"sync"
	"time"
)

type Kind string

const (
	StockChanged  Kind = "stock_changed"
	LowStock      Kind = "low_stock"
	SaleCompleted Kind = "sale_completed"
	SaleVoided    Kind = "sale_voided"
)

// Event tells subscribers that persisted state changed and views should refresh.
type Event struct {
	Kind      Kind      `json:"kind"`
	ItemID    uint      `json:"item_id,omitempty"`
	Quantity  int       `json:"quantity"`
	Delta     int       `json:"delta,omitempty"`
	Threshold int       `json:"threshold,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	SaleID    uint      `json:"sale_id,omitempty"`
	At        time.Time `json:"at"`
}

// Bus is an in-process observer registry. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	buffer int
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a listener. The returned func unregisters it and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of registered listeners.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
