// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_synthesize

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	internal_codec "github.com/rapidaai/frontdesk/api/voice-api/internal/codec"
	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

// turnQueueSize bounds pending agent turns. The dialog machine produces at
// most one turn per caller utterance, so the queue stays shallow.
const turnQueueSize = 16

// Config tunes the output scheduler.
type Config struct {
	// VoiceID is the primary TTS voice.
	VoiceID string

	// FallbackVoiceID is tried when the primary voice fails. Empty skips
	// the retry.
	FallbackVoiceID string

	// FallbackClipPCM is pre-recorded internal-format audio played when
	// synthesis fails entirely. The dialog continues text-only in the
	// event stream either way.
	FallbackClipPCM []byte

	// FrameInterval is the outbound pacing tick. Zero means the wire
	// frame duration.
	FrameInterval time.Duration
}

func (c Config) frameInterval() time.Duration {
	if c.FrameInterval > 0 {
		return c.FrameInterval
	}
	return internal_codec.OutboundFrameMs * time.Millisecond
}

// Scheduler plays agent turns: synthesize, encode, and stream outbound
// frames at the real-time rate. One in-flight turn at a time; barge-in
// cancels an interruptible turn within one frame interval.
type Scheduler struct {
	logger    commons.Logger
	cfg       Config
	tts       internal_transformer.TextToSpeechTransformer
	encoder   *internal_codec.Encoder
	publisher *internal_events.Publisher
	write     func(envelope []byte) error

	// OnTerminalDone fires after a terminal turn finishes playback, so
	// the session can hang up.
	OnTerminalDone func()

	turns chan internal_type.AgentTurn
	marks atomic.Uint64

	mu            sync.Mutex
	streamSid     string
	cancel        chan struct{}
	playing       bool
	interruptible bool
	cancelled     bool
}

// NewScheduler builds a scheduler. write delivers raw envelope bytes to the
// media WebSocket and must be safe for use from the scheduler goroutine.
func NewScheduler(
	logger commons.Logger,
	tts internal_transformer.TextToSpeechTransformer,
	publisher *internal_events.Publisher,
	write func(envelope []byte) error,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		logger:    logger,
		cfg:       cfg,
		tts:       tts,
		encoder:   internal_codec.NewEncoder(logger),
		publisher: publisher,
		write:     write,
		turns:     make(chan internal_type.AgentTurn, turnQueueSize),
	}
}

// SetStreamSid records the provider stream id once the start envelope
// arrives. Playback before that would have nowhere to go.
func (s *Scheduler) SetStreamSid(sid string) {
	s.mu.Lock()
	s.streamSid = sid
	s.mu.Unlock()
}

// Say enqueues an agent turn. It never blocks: the dialog machine calls it
// with its own lock held. On a full queue a non-terminal turn is dropped
// with a warning; a terminal turn skips its audio and requests the hangup
// directly.
func (s *Scheduler) Say(turn internal_type.AgentTurn) {
	select {
	case s.turns <- turn:
	default:
		if turn.Terminal {
			s.logger.Warnw("synthesize: turn queue full, hanging up without farewell audio", "text", turn.Text)
			if s.OnTerminalDone != nil {
				s.OnTerminalDone()
			}
			return
		}
		s.logger.Warnw("synthesize: turn queue full, dropping turn", "text", turn.Text)
	}
}

// BargeIn cancels the in-flight turn if it is interruptible. Safe to call at
// any time, from any goroutine.
func (s *Scheduler) BargeIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing && s.interruptible && !s.cancelled {
		s.cancelled = true
		close(s.cancel)
	}
}

// Playing reports whether a turn is currently being streamed.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Run plays queued turns until the context ends or a terminal turn
// completes.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case turn := <-s.turns:
			s.play(ctx, turn)
			if turn.Terminal {
				if s.OnTerminalDone != nil {
					s.OnTerminalDone()
				}
				return nil
			}
		}
	}
}

// play synthesizes and streams one turn at the real-time frame rate.
func (s *Scheduler) play(ctx context.Context, turn internal_type.AgentTurn) {
	cancel := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.playing = true
	s.interruptible = turn.Interruptible
	s.cancelled = false
	sid := s.streamSid
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
	}()

	audio, err := s.synthesize(ctx, Normalize(turn.Text))
	if err != nil {
		s.logger.Errorw("synthesize: tts failed, falling back to clip", "error", err)
		s.publisher.Publish(internal_events.TypeWarning, map[string]interface{}{
			"reason": "tts_failed",
			"text":   turn.Text,
		})
		audio = s.cfg.FallbackClipPCM
	}
	if len(audio) == 0 {
		return
	}

	payloads, err := s.encoder.Encode(audio)
	if err != nil {
		s.logger.Errorw("synthesize: encode failed", "error", err)
		s.encoder.Discard()
		return
	}
	if tail, ok := s.encoder.Flush(); ok {
		payloads = append(payloads, tail)
	}

	ticker := time.NewTicker(s.cfg.frameInterval())
	defer ticker.Stop()

	for _, payload := range payloads {
		select {
		case <-ctx.Done():
			s.encoder.Discard()
			return
		case <-cancel:
			// Pre-generated but unsent audio dies here.
			s.encoder.Discard()
			s.logger.Debugf("synthesize: turn cancelled by barge-in")
			return
		case <-ticker.C:
		}

		env, err := internal_codec.NewMediaEnvelope(sid, payload)
		if err != nil {
			s.logger.Errorw("synthesize: envelope encode failed", "error", err)
			return
		}
		if err := s.write(env); err != nil {
			s.logger.Warnw("synthesize: outbound write failed", "error", err)
			return
		}
	}

	mark := fmt.Sprintf("turn-%d", s.marks.Add(1))
	if env, err := internal_codec.NewMarkEnvelope(sid, mark); err == nil {
		if err := s.write(env); err != nil {
			s.logger.Debugf("synthesize: mark write failed: %v", err)
		}
	}
}

// synthesize tries the primary voice, then the fallback voice.
func (s *Scheduler) synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, err := s.tts.Transform(ctx, text, s.cfg.VoiceID)
	if err == nil {
		return audio, nil
	}
	if s.cfg.FallbackVoiceID == "" {
		return nil, err
	}
	s.logger.Warnw("synthesize: primary voice failed, trying fallback", "voice", s.cfg.VoiceID, "error", err)
	audio, ferr := s.tts.Transform(ctx, text, s.cfg.FallbackVoiceID)
	if ferr != nil {
		return nil, fmt.Errorf("primary: %v, fallback: %w", err, ferr)
	}
	return audio, nil
}
