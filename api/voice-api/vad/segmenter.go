// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_vad

import (
	"fmt"
	"time"

	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"github.com/rapidaai/frontdesk/pkg/utils"
)

// EventKind distinguishes segmenter boundary events.
type EventKind int

const (
	// EventSpeechStart marks the first speech frame after silence.
	EventSpeechStart EventKind = iota
	// EventSpeechEnd closes a speech run that met the minimum duration.
	EventSpeechEnd
	// EventSpeechAbort closes a speech run that was too short to keep.
	EventSpeechAbort
)

// Event is one utterance boundary.
type Event struct {
	Kind EventKind
	At   time.Time
}

// Config tunes the segmenter. Defaults (DefaultConfig) are part of the
// server contract and mirror the environment variables.
type Config struct {
	// Aggressiveness 0–3 scales the speech/silence decision threshold.
	// Higher values require louder audio to count as speech.
	Aggressiveness int

	// FrameMs is the classification window: 20 or 30.
	FrameMs int

	// SilenceTimeout is the silence window after speech that triggers
	// SpeechEnd.
	SilenceTimeout time.Duration

	// MinSpeech is the shortest speech run emitted as an utterance;
	// shorter runs abort.
	MinSpeech time.Duration

	// PrerollIgnore discards everything this long after stream start to
	// skip telephony connect noise.
	PrerollIgnore time.Duration

	// MinStartRMS is the minimum frame RMS (0–32767) that can open a
	// speech run.
	MinStartRMS float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Aggressiveness: 2,
		FrameMs:        30,
		SilenceTimeout: 2 * time.Second,
		MinSpeech:      500 * time.Millisecond,
		PrerollIgnore:  500 * time.Millisecond,
		MinStartRMS:    100,
	}
}

// thresholdScale maps aggressiveness to the multiplier applied to the
// adaptive noise floor when classifying a frame as speech.
var thresholdScale = [4]float64{1.3, 1.6, 2.0, 2.8}

// noiseFloorMin keeps the adaptive floor from collapsing on digital silence.
const noiseFloorMin = 25.0

// Segmenter classifies fixed-size frames as speech or silence and emits
// utterance boundaries. It is the sole source of boundaries in the pipeline
// and never looks ahead further than the silence timeout: SpeechEnd fires on
// the first silence frame whose run reaches the timeout.
//
// Single-writer: only the session's inbound loop calls Process/Flush.
type Segmenter struct {
	logger commons.Logger
	cfg    Config

	frameDur   time.Duration
	started    time.Time
	inSpeech   bool
	speechFrom time.Time
	silentFor  time.Duration
	lastVoiced time.Time

	// noiseFloor is an exponential moving average of silence-frame RMS.
	noiseFloor float64
}

// NewSegmenter validates the config and builds a segmenter.
func NewSegmenter(logger commons.Logger, cfg Config) (*Segmenter, error) {
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("vad: aggressiveness must be 0-3, got %d", cfg.Aggressiveness)
	}
	if cfg.FrameMs != 20 && cfg.FrameMs != 30 {
		return nil, fmt.Errorf("vad: frame duration must be 20 or 30 ms, got %d", cfg.FrameMs)
	}
	return &Segmenter{
		logger:     logger,
		cfg:        cfg,
		frameDur:   time.Duration(cfg.FrameMs) * time.Millisecond,
		noiseFloor: noiseFloorMin,
	}, nil
}

// InSpeech reports whether a speech run is open.
func (s *Segmenter) InSpeech() bool {
	return s.inSpeech
}

// Process classifies one frame and returns any boundary events it triggers.
func (s *Segmenter) Process(frame internal_type.Frame) []Event {
	if s.started.IsZero() {
		s.started = frame.At
	}
	if frame.At.Sub(s.started) < s.cfg.PrerollIgnore {
		return nil
	}

	rms := utils.RMS16(frame.PCM)
	voiced := s.classify(rms)

	if !s.inSpeech {
		if voiced && rms >= s.cfg.MinStartRMS {
			s.inSpeech = true
			s.speechFrom = frame.At
			s.lastVoiced = frame.At
			s.silentFor = 0
			return []Event{{Kind: EventSpeechStart, At: frame.At}}
		}
		// Silence frame: track the noise floor.
		s.adaptFloor(rms)
		return nil
	}

	if voiced {
		s.lastVoiced = frame.At
		s.silentFor = 0
		return nil
	}

	s.silentFor += s.frameDur
	if s.silentFor < s.cfg.SilenceTimeout {
		return nil
	}
	return []Event{s.closeRun()}
}

// Flush force-closes an open speech run, for session termination. The
// boundary timestamp is derived from the last voiced frame seen.
func (s *Segmenter) Flush() []Event {
	if !s.inSpeech {
		return nil
	}
	return []Event{s.closeRun()}
}

func (s *Segmenter) closeRun() Event {
	s.inSpeech = false
	s.silentFor = 0

	// The utterance ends where speech last occurred, not where the silence
	// window expired.
	end := s.lastVoiced.Add(s.frameDur)
	dur := end.Sub(s.speechFrom)
	if dur < s.cfg.MinSpeech {
		s.logger.Debugf("vad: aborting %dms speech run below minimum", dur.Milliseconds())
		return Event{Kind: EventSpeechAbort, At: end}
	}
	return Event{Kind: EventSpeechEnd, At: end}
}

// classify decides speech vs silence for one frame RMS against the adaptive
// noise floor scaled by aggressiveness.
func (s *Segmenter) classify(rms float64) bool {
	threshold := s.noiseFloor * thresholdScale[s.cfg.Aggressiveness]
	if threshold < noiseFloorMin {
		threshold = noiseFloorMin
	}
	return rms > threshold
}

func (s *Segmenter) adaptFloor(rms float64) {
	const alpha = 0.05
	s.noiseFloor = (1-alpha)*s.noiseFloor + alpha*rms
	if s.noiseFloor < noiseFloorMin {
		s.noiseFloor = noiseFloorMin
	}
}
