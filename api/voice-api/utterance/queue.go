// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_utterance

import (
	"sync"

	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
)

// Queue is the bounded handoff between the inbound loop and the
// transcription gateway. When full, the oldest queued utterance is dropped
// so the inbound loop never blocks on a slow STT provider.
type Queue struct {
	mu      sync.Mutex
	items   []*internal_type.Utterance
	depth   int
	notify  chan struct{}
	dropped uint64
}

// NewQueue builds a queue of the given depth (minimum 1).
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{
		depth:  depth,
		notify: make(chan struct{}, depth),
	}
}

// Push enqueues an utterance. Returns the utterance that was evicted to make
// room, or nil when the queue had capacity.
func (q *Queue) Push(u *internal_type.Utterance) *internal_type.Utterance {
	q.mu.Lock()
	var evicted *internal_type.Utterance
	if len(q.items) >= q.depth {
		evicted = q.items[0]
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, u)
	q.mu.Unlock()

	if evicted == nil {
		// Only signal for net-new items; an eviction consumed no signal.
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return evicted
}

// Wait returns a channel that receives when items become available.
func (q *Queue) Wait() <-chan struct{} {
	return q.notify
}

// Pop dequeues the oldest utterance, or nil when empty.
func (q *Queue) Pop() *internal_type.Utterance {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	u := q.items[0]
	q.items = q.items[1:]
	return u
}

// Dropped reports how many utterances were evicted.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
