// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import "time"

// Frame is a fixed-duration slice of linear PCM16 mono audio at the internal
// sample rate (16 kHz). Frames are transient: they are classified by the VAD
// and not retained afterwards.
type Frame struct {
	PCM []byte
	At  time.Time
}

// Utterance is a contiguous run of speech audio bracketed by VAD boundaries.
type Utterance struct {
	ID      uint64
	PCM     []byte
	Start   time.Time
	End     time.Time
	PeakRMS float64
}

// Duration returns the audio duration of the utterance.
func (u *Utterance) Duration() time.Duration {
	return u.End.Sub(u.Start)
}

// Transcript is the accepted result of transcribing one utterance.
type Transcript struct {
	UtteranceID uint64
	Text        string
	Confidence  float64 // average log-probability
	Start       time.Time
	End         time.Time
}

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAgent  Speaker = "agent"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// TurnTag classifies an agent turn for downstream scheduling.
type TurnTag string

const (
	TurnTagPrompt   TurnTag = "prompt"
	TurnTagConfirm  TurnTag = "confirm"
	TurnTagFarewell TurnTag = "farewell"
)

// AgentTurn is a single utterance the agent should speak. Terminal turns
// request hangup after playback completes.
type AgentTurn struct {
	Text          string
	Tag           TurnTag
	Interruptible bool
	Terminal      bool
}

// Verdict is the operator decision on a pending booking.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
	VerdictTimeout  Verdict = "timeout"
)
