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
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

// ErrRejected marks transcripts filtered out by the gateway: low confidence,
// hallucination artifacts, or nothing left after cleaning. The utterance is
// dropped and the dialog is told the input was unintelligible.
var ErrRejected = errors.New("transcript rejected")

// ErrProvider marks STT provider failures (timeout, transport, 5xx). The
// utterance is dropped; the session continues.
var ErrProvider = errors.New("stt provider failure")

// Config tunes the gateway filters.
type Config struct {
	// ConfidenceThreshold is the minimum average log-probability.
	ConfidenceThreshold float64

	// RequestTimeout bounds one STT call.
	RequestTimeout time.Duration

	// FailureStreak is how many consecutive provider failures trigger the
	// degraded-mode event.
	FailureStreak int

	// Denylist contains lowercase phrases stripped as STT hallucinations
	// on short or low-energy segments.
	Denylist []string

	// DenylistMaxDuration bounds which utterances the denylist applies
	// to; long utterances containing a listed phrase are kept.
	DenylistMaxDuration time.Duration
}

// DefaultConfig returns the documented defaults. The denylist covers the
// usual whisper-style artifacts that show up on near-silent telephone audio.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: -0.7,
		RequestTimeout:      8 * time.Second,
		FailureStreak:       5,
		Denylist: []string{
			"thank you for watching",
			"thanks for watching",
			"please subscribe",
			"subtitles by",
			"you",
			"bye",
		},
		DenylistMaxDuration: 1500 * time.Millisecond,
	}
}

// Gateway submits utterances to the STT provider and filters the results.
// One gateway per session; the transcription loop is its only caller.
type Gateway struct {
	logger commons.Logger
	cfg    Config
	stt    internal_transformer.SpeechToTextTransformer

	failures int

	// OnDegraded fires once when the failure streak crosses the
	// threshold, and is re-armed by the next success.
	OnDegraded func(streak int)
}

// NewGateway builds a transcription gateway.
func NewGateway(logger commons.Logger, stt internal_transformer.SpeechToTextTransformer, cfg Config) *Gateway {
	return &Gateway{logger: logger, cfg: cfg, stt: stt}
}

// Transcribe runs one utterance through the provider and filters. On
// success the returned transcript carries the utterance id and timestamps.
func (g *Gateway) Transcribe(ctx context.Context, u *internal_type.Utterance) (*internal_type.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	out, err := g.stt.Transform(ctx, WrapWAV(u.PCM))
	if err != nil {
		g.failures++
		if g.failures == g.cfg.FailureStreak && g.OnDegraded != nil {
			g.OnDegraded(g.failures)
		}
		// Wrap both so callers can split transient from permanent failures.
		return nil, fmt.Errorf("%w: utterance %d: %w", ErrProvider, u.ID, err)
	}
	g.failures = 0

	if out.AvgLogProb < g.cfg.ConfidenceThreshold {
		return nil, fmt.Errorf("%w: confidence %.2f below %.2f", ErrRejected, out.AvgLogProb, g.cfg.ConfidenceThreshold)
	}

	text := g.clean(out.Text, u)
	if text == "" {
		return nil, fmt.Errorf("%w: empty after cleaning", ErrRejected)
	}

	return &internal_type.Transcript{
		UtteranceID: u.ID,
		Text:        text,
		Confidence:  out.AvgLogProb,
		Start:       u.Start,
		End:         u.End,
	}, nil
}

// FailureStreak reports the current consecutive provider failure count.
func (g *Gateway) FailureStreak() int {
	return g.failures
}

// clean collapses whitespace, strips hallucination artifacts on short
// segments, and rejects text with fewer than 2 graphemes or only
// punctuation.
func (g *Gateway) clean(text string, u *internal_type.Utterance) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	if u.Duration() <= g.cfg.DenylistMaxDuration {
		lowered := strings.ToLower(strings.TrimFunc(text, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSpace(r)
		}))
		for _, phrase := range g.cfg.Denylist {
			if lowered == phrase {
				g.logger.Debugf("transcribe: dropped hallucination artifact %q", text)
				return ""
			}
		}
	}

	letters := 0
	for _, r := range text {
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			letters++
		}
	}
	if letters == 0 || utf8.RuneCountInString(strings.TrimSpace(text)) < 2 {
		return ""
	}
	return text
}
