// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_utterance

import (
	"bytes"
	"time"

	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"github.com/rapidaai/frontdesk/pkg/utils"
)

// Config gates which closed speech runs become utterances.
type Config struct {
	// MinDuration rejects utterances shorter than this.
	MinDuration time.Duration

	// MinPeakRMS rejects utterances whose loudest frame stays below this
	// (0–32767 scale).
	MinPeakRMS float64
}

// DefaultConfig returns the documented gate defaults.
func DefaultConfig() Config {
	return Config{
		MinDuration: 500 * time.Millisecond,
		MinPeakRMS:  60,
	}
}

// Buffer accumulates PCM between a SpeechStart and SpeechEnd boundary and
// produces gated utterances with a monotonic per-call id.
//
// Single-writer: only the session's inbound loop touches it, so no locking.
type Buffer struct {
	logger commons.Logger
	cfg    Config

	open    bool
	start   time.Time
	pcm     bytes.Buffer
	peakRMS float64
	nextID  uint64
}

// NewBuffer builds an utterance buffer.
func NewBuffer(logger commons.Logger, cfg Config) *Buffer {
	return &Buffer{logger: logger, cfg: cfg}
}

// Begin opens accumulation at a SpeechStart boundary. Re-opening an already
// open buffer restarts it; the half-collected audio cannot belong to a valid
// utterance once its start boundary is superseded.
func (b *Buffer) Begin(at time.Time) {
	if b.open {
		b.logger.Warnf("utterance: begin while open, dropping %d buffered bytes", b.pcm.Len())
	}
	b.open = true
	b.start = at
	b.pcm.Reset()
	b.peakRMS = 0
}

// Append adds one frame of speech-region PCM.
func (b *Buffer) Append(frame internal_type.Frame) {
	if !b.open {
		return
	}
	b.pcm.Write(frame.PCM)
	if rms := utils.RMS16(frame.PCM); rms > b.peakRMS {
		b.peakRMS = rms
	}
}

// End closes accumulation at a SpeechEnd boundary and applies the gates.
// Returns nil when the utterance is discarded.
func (b *Buffer) End(at time.Time) *internal_type.Utterance {
	if !b.open {
		return nil
	}
	b.open = false

	dur := at.Sub(b.start)
	if dur < b.cfg.MinDuration {
		b.logger.Debugf("utterance: discarded, %dms below minimum duration", dur.Milliseconds())
		b.pcm.Reset()
		return nil
	}
	if b.peakRMS < b.cfg.MinPeakRMS {
		b.logger.Debugf("utterance: discarded, peak rms %.0f below minimum", b.peakRMS)
		b.pcm.Reset()
		return nil
	}

	pcm := make([]byte, b.pcm.Len())
	b.pcm.Read(pcm)
	b.nextID++
	return &internal_type.Utterance{
		ID:      b.nextID,
		PCM:     pcm,
		Start:   b.start,
		End:     at,
		PeakRMS: b.peakRMS,
	}
}

// Abort closes accumulation without producing an utterance, for speech runs
// the segmenter judged too short.
func (b *Buffer) Abort() {
	b.open = false
	b.pcm.Reset()
	b.peakRMS = 0
}

// Open reports whether accumulation is in progress.
func (b *Buffer) Open() bool {
	return b.open
}
