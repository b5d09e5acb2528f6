// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_codec

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/frontdesk/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-codec"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

// mulawSilence builds a base64 payload of n µ-law silence bytes.
func mulawSilence(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 0xFF
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		event   string
	}{
		{
			name:  "media event",
			raw:   `{"event":"media","streamSid":"MZ1","media":{"payload":"//8=","timestamp":"10"}}`,
			event: EventMedia,
		},
		{
			name:  "start event",
			raw:   `{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1"}}`,
			event: EventStart,
		},
		{
			name:    "not json",
			raw:     `not json at all`,
			wantErr: true,
		},
		{
			name:    "missing event",
			raw:     `{"streamSid":"MZ1"}`,
			wantErr: true,
		},
		{
			name:    "media without payload",
			raw:     `{"event":"media","media":{}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrFrameMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, env.Event)
		})
	}
}

func TestNewDecoderRejectsBadFrameDuration(t *testing.T) {
	_, err := NewDecoder(newTestLogger(t), 25)
	require.Error(t, err)
}

func TestDecoderFraming(t *testing.T) {
	dec, err := NewDecoder(newTestLogger(t), 30)
	require.NoError(t, err)

	// 30 ms of PCM16 at 16 kHz.
	assert.Equal(t, 960, dec.FrameBytes())

	// 20 ms of wire audio yields 640 internal bytes: not yet a frame.
	frames, err := dec.Decode(mulawSilence(160), time.Now())
	require.NoError(t, err)
	assert.Empty(t, frames)

	// Second 20 ms chunk completes one 30 ms frame with 10 ms left over.
	frames, err = dec.Decode(mulawSilence(160), time.Now())
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0].PCM, 960)
}

func TestDecoderMalformedPayload(t *testing.T) {
	dec, err := NewDecoder(newTestLogger(t), 30)
	require.NoError(t, err)

	_, err = dec.Decode("!!! not base64 !!!", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameMalformed)
	assert.Equal(t, uint64(1), dec.MalformedCount())
}

func TestEncoderFraming(t *testing.T) {
	enc := NewEncoder(newTestLogger(t))

	// 20 ms of internal audio becomes exactly one wire frame.
	payloads, err := enc.Encode(make([]byte, 640))
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	raw, err := base64.StdEncoding.DecodeString(payloads[0])
	require.NoError(t, err)
	assert.Len(t, raw, 160)
}

func TestEncoderFlushZeroPads(t *testing.T) {
	enc := NewEncoder(newTestLogger(t))

	// 10 ms of internal audio leaves a partial wire frame buffered.
	payloads, err := enc.Encode(make([]byte, 320))
	require.NoError(t, err)
	assert.Empty(t, payloads)

	tail, ok := enc.Flush()
	require.True(t, ok)

	raw, err := base64.StdEncoding.DecodeString(tail)
	require.NoError(t, err)
	require.Len(t, raw, 160)
	// The pad is µ-law silence, not zero bytes.
	assert.Equal(t, byte(0xFF), raw[159])

	_, ok = enc.Flush()
	assert.False(t, ok)
}

func TestEncoderDiscard(t *testing.T) {
	enc := NewEncoder(newTestLogger(t))

	_, err := enc.Encode(make([]byte, 320))
	require.NoError(t, err)
	enc.Discard()

	_, ok := enc.Flush()
	assert.False(t, ok)
}
