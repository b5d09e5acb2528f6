// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transformer

import (
	"context"
	"errors"

	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
)

// ErrPermanent marks provider responses that retrying cannot fix (auth,
// 4xx). The session plays an apology and ends; the process continues.
var ErrPermanent = errors.New("permanent provider error")

// ErrTransient marks timeouts and 5xx responses. The affected utterance or
// turn is dropped and the session continues.
var ErrTransient = errors.New("transient provider error")

// Transcription is the raw STT provider result before gateway filtering.
type Transcription struct {
	Text string
	// AvgLogProb is the provider's average log-probability confidence.
	AvgLogProb float64
	Language   string
}

// SpeechToTextTransformer maps utterance audio (WAV bytes) to a transcription.
type SpeechToTextTransformer interface {
	Name() string
	Transform(ctx context.Context, wav []byte) (*Transcription, error)
}

// TextToSpeechTransformer maps agent text to PCM16 16 kHz mono audio.
// voiceID selects the provider voice; empty selects the provider default.
type TextToSpeechTransformer interface {
	Name() string
	Transform(ctx context.Context, text, voiceID string) ([]byte, error)
}

// IntentExtraction is the structured output of the NLU provider: slot values
// recognized in the utterance, given the conversation so far.
type IntentExtraction struct {
	// Slots maps slot name (service_type, appointment_time, address,
	// phone, name) to the extracted value. Only slots the provider is
	// confident about appear.
	Slots map[string]string
}

// IntentTransformer maps (history, utterance, current slots) to an intent.
type IntentTransformer interface {
	Name() string
	Extract(ctx context.Context, history []internal_type.Turn, utterance string, slots map[string]string) (*IntentExtraction, error)
}
