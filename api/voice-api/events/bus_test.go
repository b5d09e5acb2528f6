// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_events

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/frontdesk/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-events"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

func drain(sub *Subscriber) []Event {
	var out []Event
	for {
		select {
		case evt := <-sub.Events():
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestPublisherStampsDenseSequence(t *testing.T) {
	bus := NewBus(newTestLogger(t))
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	pubA := bus.Publisher("call-a")
	pubB := bus.Publisher("call-b")

	pubA.Publish(TypeCallStarted, nil)
	pubB.Publish(TypeCallStarted, nil)
	pubA.Publish(TypeTranscript, map[string]interface{}{"text": "hello"})
	pubA.Publish(TypeAgentSaid, nil)

	seqs := map[string][]uint64{}
	for _, evt := range drain(sub) {
		seqs[evt.CallID] = append(seqs[evt.CallID], evt.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs["call-a"])
	assert.Equal(t, []uint64{1}, seqs["call-b"])
}

func TestPublisherOrderUnderContention(t *testing.T) {
	bus := NewBus(newTestLogger(t))
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	pub := bus.Publisher("call-a")

	var seqs []uint64
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for evt := range sub.Events() {
			seqs = append(seqs, evt.Seq)
		}
	}()

	// The session publishes from several goroutines at once: the scheduler,
	// the transcribe loop, the inbound loop, and the manager's verdict path.
	const perWriter = 100
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				pub.Publish(TypeTranscript, nil)
			}
		}()
	}
	wg.Wait()
	bus.Unsubscribe(sub)
	<-consumed

	require.Len(t, seqs, 2*perWriter)
	for i := 1; i < len(seqs); i++ {
		require.Equal(t, seqs[i-1]+1, seqs[i], "sequence inverted at position %d", i)
	}
}

func TestSlowSubscriberLagsWithNotice(t *testing.T) {
	bus := NewBus(newTestLogger(t))
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	pub := bus.Publisher("call-a")
	overflow := 4
	for i := 0; i < subscriberBuffer+overflow; i++ {
		pub.Publish(TypeTranscript, map[string]interface{}{"text": fmt.Sprintf("turn %d", i)})
	}

	events := drain(sub)
	require.Len(t, events, subscriberBuffer)

	// The oldest events were evicted; delivery resumes at seq overflow+1.
	assert.Equal(t, uint64(overflow+1), events[0].Seq)
	assert.Equal(t, uint64(subscriberBuffer+overflow), events[len(events)-1].Seq)

	// The next publish flushes the pending lag notice first.
	pub.Publish(TypeAgentSaid, nil)
	events = drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, TypeLagged, events[0].Type)
	assert.Equal(t, uint64(overflow), events[0].Data["dropped"])
	assert.Equal(t, TypeAgentSaid, events[1].Type)
}

func TestFastSubscriberSeesEveryEvent(t *testing.T) {
	bus := NewBus(newTestLogger(t))
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	pub := bus.Publisher("call-a")
	for i := 0; i < 50; i++ {
		pub.Publish(TypeTranscript, nil)
		evt := <-sub.Events()
		assert.Equal(t, uint64(i+1), evt.Seq)
		assert.NotEqual(t, TypeLagged, evt.Type)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(newTestLogger(t))
	sub := bus.Subscribe()

	bus.Unsubscribe(sub)
	_, open := <-sub.Events()
	assert.False(t, open)

	// Idempotent, and late publishes do not panic on the closed channel.
	bus.Unsubscribe(sub)
	bus.Publisher("call-a").Publish(TypeTranscript, nil)
}

type recordingHandler struct {
	cmds []Command
	err  error
}

func (r *recordingHandler) HandleOperatorCommand(ctx context.Context, cmd Command) error {
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func TestDeliverRoutesByCallID(t *testing.T) {
	bus := NewBus(newTestLogger(t))
	handler := &recordingHandler{}
	bus.RegisterCommandTarget("call-a", handler)

	cmd := Command{Type: "approve", CallID: "call-a", BookingID: "b-1"}
	require.NoError(t, bus.Deliver(context.Background(), cmd))
	require.Len(t, handler.cmds, 1)
	assert.Equal(t, cmd, handler.cmds[0])

	err := bus.Deliver(context.Background(), Command{Type: "approve", CallID: "call-b"})
	assert.ErrorIs(t, err, ErrNotFound)

	bus.UnregisterCommandTarget("call-a")
	err = bus.Deliver(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrNotFound)
}
