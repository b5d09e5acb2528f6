// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/zaf/g711"

	internal_audio "github.com/rapidaai/frontdesk/api/voice-api/internal/audio"
	internal_audio_resampler "github.com/rapidaai/frontdesk/api/voice-api/internal/audio/resampler"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

// OutboundFrameMs is the wire-side chunk duration for outbound media. Twilio
// accepts arbitrary chunk sizes but paces playback at 20 ms frames.
const OutboundFrameMs = 20

// Decoder turns inbound provider payloads (base64 µ-law 8 kHz) into
// fixed-size internal frames (PCM16 16 kHz mono). It is the only place
// inbound audio is resampled; the only state beyond the resampler's filter
// memory is the partial-frame remainder.
type Decoder struct {
	logger    commons.Logger
	resampler internal_audio_resampler.AudioResampler
	encoding  *base64.Encoding

	frameBytes int // internal frame size: FrameMs of PCM16 @ 16kHz
	pending    bytes.Buffer
	malformed  uint64
}

// NewDecoder creates a decoder that emits frames of frameMs milliseconds
// (20 or 30).
func NewDecoder(logger commons.Logger, frameMs int) (*Decoder, error) {
	if frameMs != 20 && frameMs != 30 {
		return nil, fmt.Errorf("codec: frame duration must be 20 or 30 ms, got %d", frameMs)
	}
	return &Decoder{
		logger:     logger,
		resampler:  internal_audio_resampler.NewResampler(logger),
		encoding:   base64.StdEncoding,
		frameBytes: frameMs * internal_audio.INTERNAL_AUDIO_CONFIG.BytesPerMs(),
	}, nil
}

// Decode decompands and upsamples one media payload and returns all complete
// frames now available. Short payloads accumulate until a full frame exists.
func (d *Decoder) Decode(payload string, at time.Time) ([]internal_type.Frame, error) {
	mulaw, err := d.encoding.DecodeString(payload)
	if err != nil {
		d.malformed++
		return nil, fmt.Errorf("%w: base64: %v", ErrFrameMalformed, err)
	}

	pcm8k := g711.DecodeUlaw(mulaw)
	pcm16k, err := d.resampler.Resample(pcm8k,
		internal_audio.Config{Format: internal_audio.FormatLinear16, SampleRate: 8000, Channels: 1},
		internal_audio.INTERNAL_AUDIO_CONFIG)
	if err != nil {
		return nil, fmt.Errorf("codec: resample inbound: %w", err)
	}
	d.pending.Write(pcm16k)

	var frames []internal_type.Frame
	for d.pending.Len() >= d.frameBytes {
		frame := make([]byte, d.frameBytes)
		d.pending.Read(frame)
		frames = append(frames, internal_type.Frame{PCM: frame, At: at})
	}
	return frames, nil
}

// NoteMalformed counts an envelope-level parse failure toward the malformed
// total, so the call summary covers both rejection layers.
func (d *Decoder) NoteMalformed() {
	d.malformed++
}

// MalformedCount reports how many inbound messages failed to parse.
func (d *Decoder) MalformedCount() uint64 {
	return d.malformed
}

// FrameBytes returns the internal frame size in bytes.
func (d *Decoder) FrameBytes() int {
	return d.frameBytes
}

// Encoder turns internal PCM16 16 kHz audio into outbound provider payloads:
// downsample to 8 kHz, µ-law compand, base64. One payload per 20 ms frame so
// the scheduler can pace playback and stop within a frame interval.
type Encoder struct {
	logger    commons.Logger
	resampler internal_audio_resampler.AudioResampler
	encoding  *base64.Encoding

	wireFrameBytes int // OutboundFrameMs of µ-law @ 8kHz
	pending        bytes.Buffer
}

// NewEncoder creates the outbound encoder.
func NewEncoder(logger commons.Logger) *Encoder {
	return &Encoder{
		logger:         logger,
		resampler:      internal_audio_resampler.NewResampler(logger),
		encoding:       base64.StdEncoding,
		wireFrameBytes: OutboundFrameMs * internal_audio.TELEPHONY_AUDIO_CONFIG.BytesPerMs(),
	}
}

// Encode converts internal PCM into zero or more wire payloads. A trailing
// partial frame stays buffered until more audio arrives or Flush is called.
func (e *Encoder) Encode(pcm16k []byte) ([]string, error) {
	pcm8k, err := e.resampler.Resample(pcm16k,
		internal_audio.INTERNAL_AUDIO_CONFIG,
		internal_audio.Config{Format: internal_audio.FormatLinear16, SampleRate: 8000, Channels: 1})
	if err != nil {
		return nil, fmt.Errorf("codec: resample outbound: %w", err)
	}
	e.pending.Write(g711.EncodeUlaw(pcm8k))

	var payloads []string
	for e.pending.Len() >= e.wireFrameBytes {
		frame := make([]byte, e.wireFrameBytes)
		e.pending.Read(frame)
		payloads = append(payloads, e.encoding.EncodeToString(frame))
	}
	return payloads, nil
}

// Flush emits any buffered partial frame, zero-padded to a full frame so the
// provider hears a clean tail instead of a truncated click.
func (e *Encoder) Flush() (string, bool) {
	if e.pending.Len() == 0 {
		return "", false
	}
	frame := make([]byte, e.wireFrameBytes)
	// µ-law silence is 0xFF, not 0x00.
	for i := range frame {
		frame[i] = 0xFF
	}
	e.pending.Read(frame)
	e.pending.Reset()
	return e.encoding.EncodeToString(frame), true
}

// Discard drops any buffered partial frame. Used on barge-in so stale audio
// never reaches the wire.
func (e *Encoder) Discard() {
	e.pending.Reset()
	e.resampler.Reset()
}
