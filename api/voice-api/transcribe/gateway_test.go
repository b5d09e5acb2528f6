// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcribe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-transcribe"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

type fakeSTT struct {
	out   *internal_transformer.Transcription
	err   error
	calls int
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func (f *fakeSTT) Transform(ctx context.Context, wav []byte) (*internal_transformer.Transcription, error) {
	f.calls++
	return f.out, f.err
}

func testUtterance(dur time.Duration) *internal_type.Utterance {
	start := time.Now()
	return &internal_type.Utterance{
		ID:    1,
		PCM:   make([]byte, 3200),
		Start: start,
		End:   start.Add(dur),
	}
}

func TestTranscribeAccepts(t *testing.T) {
	stt := &fakeSTT{out: &internal_transformer.Transcription{Text: "  book   a   plumber  ", AvgLogProb: -0.2}}
	g := NewGateway(newTestLogger(t), stt, DefaultConfig())

	tr, err := g.Transcribe(context.Background(), testUtterance(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "book a plumber", tr.Text)
	assert.Equal(t, uint64(1), tr.UtteranceID)
	assert.Equal(t, -0.2, tr.Confidence)
}

func TestTranscribeRejectsLowConfidence(t *testing.T) {
	stt := &fakeSTT{out: &internal_transformer.Transcription{Text: "mumble", AvgLogProb: -1.4}}
	g := NewGateway(newTestLogger(t), stt, DefaultConfig())

	_, err := g.Transcribe(context.Background(), testUtterance(2*time.Second))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestTranscribeStripsHallucinations(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		dur      time.Duration
		rejected bool
	}{
		{"short youtube artifact", "Thank you for watching.", time.Second, true},
		{"short bare you", "you", time.Second, true},
		{"single grapheme", "a", 2 * time.Second, true},
		{"punctuation only", "...", 2 * time.Second, true},
		{"long utterance keeps phrase", "thank you for watching the house while I was away", 3 * time.Second, false},
		{"normal speech", "tomorrow at noon", time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stt := &fakeSTT{out: &internal_transformer.Transcription{Text: tt.text, AvgLogProb: -0.1}}
			g := NewGateway(newTestLogger(t), stt, DefaultConfig())

			_, err := g.Transcribe(context.Background(), testUtterance(tt.dur))
			if tt.rejected {
				assert.ErrorIs(t, err, ErrRejected)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTranscribeFailureStreak(t *testing.T) {
	stt := &fakeSTT{err: errors.New("upstream 503")}
	g := NewGateway(newTestLogger(t), stt, DefaultConfig())

	var degraded []int
	g.OnDegraded = func(streak int) { degraded = append(degraded, streak) }

	for i := 0; i < 7; i++ {
		_, err := g.Transcribe(context.Background(), testUtterance(time.Second))
		assert.ErrorIs(t, err, ErrProvider)
	}

	// Fired exactly once, when the streak crossed the threshold.
	require.Len(t, degraded, 1)
	assert.Equal(t, 5, degraded[0])
	assert.Equal(t, 7, g.FailureStreak())

	// A success resets the streak and re-arms the notification.
	stt.err = nil
	stt.out = &internal_transformer.Transcription{Text: "hello there", AvgLogProb: -0.1}
	_, err := g.Transcribe(context.Background(), testUtterance(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, g.FailureStreak())
}

func TestTranscribePreservesPermanentErrors(t *testing.T) {
	stt := &fakeSTT{err: fmt.Errorf("stt: %w: status 401", internal_transformer.ErrPermanent)}
	g := NewGateway(newTestLogger(t), stt, DefaultConfig())

	_, err := g.Transcribe(context.Background(), testUtterance(time.Second))
	assert.ErrorIs(t, err, ErrProvider)
	// The provider classification survives the wrap so the session can end
	// the call instead of retrying forever.
	assert.ErrorIs(t, err, internal_transformer.ErrPermanent)
}

func TestWrapWAVHeader(t *testing.T) {
	pcm := make([]byte, 320)
	wav := WrapWAV(pcm)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "data", string(wav[36:40]))
}
