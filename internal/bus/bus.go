// Package bus is the in-process observability bus. The request path never
// depends on it: the Orchestrator publishes what happened, and the display
// and auditor watch. Dropping a message can cost a log line, never a result.
package bus

import (
	"log"
	"sync"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

const (
	subscriberBufSize = 64
	tapBufSize        = 256
)

// Bus fans published messages out to per-type subscribers, to wildcard
// subscribers, and to a single tap channel reserved for the Auditor.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[types.MessageType][]chan types.Message
	allSubs     []chan types.Message
	tapCh       chan types.Message
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[types.MessageType][]chan types.Message),
		tapCh:       make(chan types.Message, tapBufSize),
	}
}

// Publish fans out msg to subscribers of msg.Type, to wildcard subscribers,
// and to the tap channel. Non-blocking throughout: a full subscriber channel
// drops the message with a warning rather than stalling the publisher.
func (b *Bus) Publish(msg types.Message) {
	b.mu.RLock()
	subs := b.subscribers[msg.Type]
	all := b.allSubs
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			log.Printf("[BUS] WARNING: subscriber channel full for type=%s from=%s — message dropped", msg.Type, msg.From)
		}
	}

	for _, ch := range all {
		select {
		case ch <- msg:
		default:
			log.Printf("[BUS] WARNING: wildcard subscriber full — message dropped type=%s", msg.Type)
		}
	}

	// Send to tap (auditor). Non-blocking to avoid auditor backpressure stalling the bus.
	select {
	case b.tapCh <- msg:
	default:
		log.Printf("[BUS] WARNING: tap channel full — audit message dropped type=%s", msg.Type)
	}
}

// Subscribe returns a receive-only channel that delivers messages of type t.
// Each call creates a new independent subscriber channel.
func (b *Bus) Subscribe(t types.MessageType) <-chan types.Message {
	ch := make(chan types.Message, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[t] = append(b.subscribers[t], ch)
	b.mu.Unlock()
	return ch
}

// SubscribeAll returns a receive-only channel that delivers every published
// message regardless of type. The terminal display uses this to follow the
// whole pipeline.
func (b *Bus) SubscribeAll() <-chan types.Message {
	ch := make(chan types.Message, subscriberBufSize)
	b.mu.Lock()
	b.allSubs = append(b.allSubs, ch)
	b.mu.Unlock()
	return ch
}

// Tap returns the read-only tap channel for the Auditor.
// Only one consumer should call this; calling it multiple times returns the same channel.
func (b *Bus) Tap() <-chan types.Message {
	return b.tapCh
}
