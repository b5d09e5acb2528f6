// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_utterance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"github.com/rapidaai/frontdesk/pkg/utils"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-utterance"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

func toneFrame(amplitude int16, at time.Time) internal_type.Frame {
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = amplitude
	}
	return internal_type.Frame{PCM: utils.SamplesToPCM16(samples), At: at}
}

// fill appends n frames of the given amplitude starting at `at`.
func fill(b *Buffer, amplitude int16, at time.Time, n int) time.Time {
	for i := 0; i < n; i++ {
		b.Append(toneFrame(amplitude, at))
		at = at.Add(30 * time.Millisecond)
	}
	return at
}

func TestBufferProducesGatedUtterance(t *testing.T) {
	b := NewBuffer(newTestLogger(t), DefaultConfig())
	start := time.Now()

	b.Begin(start)
	end := fill(b, 2000, start, 20) // 600 ms

	u := b.End(end)
	require.NotNil(t, u)
	assert.Equal(t, uint64(1), u.ID)
	assert.Equal(t, start, u.Start)
	assert.Equal(t, end, u.End)
	assert.Len(t, u.PCM, 20*960)
	assert.InDelta(t, 2000, u.PeakRMS, 1)

	// IDs are monotonic per call.
	b.Begin(end)
	end2 := fill(b, 2000, end, 20)
	u2 := b.End(end2)
	require.NotNil(t, u2)
	assert.Equal(t, uint64(2), u2.ID)
}

func TestBufferRejectsShortUtterance(t *testing.T) {
	b := NewBuffer(newTestLogger(t), DefaultConfig())
	start := time.Now()

	// 400 ms is below the 500 ms gate.
	b.Begin(start)
	fill(b, 2000, start, 13)
	assert.Nil(t, b.End(start.Add(400*time.Millisecond)))
}

func TestBufferRejectsQuietUtterance(t *testing.T) {
	b := NewBuffer(newTestLogger(t), DefaultConfig())
	start := time.Now()

	// 600 ms but peak RMS 55 stays below the 60 gate.
	b.Begin(start)
	end := fill(b, 55, start, 20)
	assert.Nil(t, b.End(end))
}

func TestBufferAbortDiscards(t *testing.T) {
	b := NewBuffer(newTestLogger(t), DefaultConfig())
	start := time.Now()

	b.Begin(start)
	fill(b, 2000, start, 20)
	b.Abort()
	assert.False(t, b.Open())
	assert.Nil(t, b.End(start.Add(time.Second)))
}

func TestBufferEndWithoutBegin(t *testing.T) {
	b := NewBuffer(newTestLogger(t), DefaultConfig())
	assert.Nil(t, b.End(time.Now()))
}

func TestBufferReopenRestarts(t *testing.T) {
	b := NewBuffer(newTestLogger(t), DefaultConfig())
	start := time.Now()

	b.Begin(start)
	fill(b, 2000, start, 10)

	// A superseding start boundary drops the half-collected audio.
	restart := start.Add(time.Second)
	b.Begin(restart)
	end := fill(b, 2000, restart, 20)
	u := b.End(end)
	require.NotNil(t, u)
	assert.Equal(t, restart, u.Start)
	assert.Len(t, u.PCM, 20*960)
}
