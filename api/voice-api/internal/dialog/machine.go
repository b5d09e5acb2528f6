// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

// ErrVerdictState is returned when an operator verdict arrives for a draft
// that is not awaiting one. A draft leaves awaiting-operator exactly once.
var ErrVerdictState = errors.New("booking draft is not awaiting an operator verdict")

const (
	// unintelligibleThreshold is how many consecutive rejected transcripts
	// trigger one reprompt.
	unintelligibleThreshold = 2

	// repromptLimit is how many reprompts are produced before the call is
	// handed off and ended.
	repromptLimit = 3
)

const (
	greetingText         = "Hi, thanks for calling. I can help you book an appointment."
	farewellPreambleText = "You'll be sent an SMS with your booking details once your appointment is confirmed."
	farewellFinalText    = "Thanks for calling, have a great rest of your day."
	repromptText         = "Sorry, could you repeat that?"
	transferText         = "I'm having trouble hearing you. Let me transfer you to one of our team members. Please hold."
	inactivityText       = "Are you still there?"
	apologyText          = "I'm sorry, we're having technical difficulties right now. Please call back in a few minutes."
	closingText          = "I haven't heard anything for a while, so I'll let you go. Call back any time. Goodbye."
)

// Machine is the per-call dialog reducer. Transcripts, operator verdicts and
// inactivity nudges all funnel through it; its only side effects are
// appending to history, emitting agent turns, publishing events, and (on
// approval) invoking the persistence hook once.
type Machine struct {
	logger    commons.Logger
	lexicon   Lexicon
	nlu       internal_transformer.IntentTransformer
	publisher *internal_events.Publisher
	emit      func(internal_type.AgentTurn)

	// OnBookingApproved is the external persistence hook, invoked exactly
	// once when the operator approves the draft.
	OnBookingApproved func(ctx context.Context, draft *BookingDraft) error

	mu             sync.Mutex
	state          State
	draft          *BookingDraft
	history        []internal_type.Turn
	unintelligible int
	reprompts      int
}

// NewMachine builds a dialog machine in the greeting state. emit receives
// every agent turn the machine produces.
func NewMachine(
	logger commons.Logger,
	nlu internal_transformer.IntentTransformer,
	publisher *internal_events.Publisher,
	emit func(internal_type.AgentTurn),
) *Machine {
	return &Machine{
		logger:    logger,
		lexicon:   DefaultLexicon(),
		nlu:       nlu,
		publisher: publisher,
		emit:      emit,
		state:     StateGreeting,
		draft:     NewBookingDraft(),
	}
}

// State returns the current dialog state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Draft returns the booking draft. The machine remains its only writer.
func (m *Machine) Draft() *BookingDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

// Start emits the greeting turn and moves to collecting. The transition does
// not wait for caller input.
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateGreeting {
		return
	}
	m.say(internal_type.AgentTurn{
		Text:          greetingText + " " + slotQuestions[m.draft.MissingSlot()],
		Tag:           internal_type.TurnTagPrompt,
		Interruptible: true,
	})
	m.state = StateCollecting
}

// OnTranscript reduces one accepted transcript. Speech arriving after the
// booking has been handed to the operator is recorded but not acted on.
func (m *Machine) OnTranscript(ctx context.Context, t *internal_type.Transcript) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		m.logger.Debugf("dialog: ignoring transcript in state %s", m.state)
		return
	}

	m.history = append(m.history, internal_type.Turn{
		Speaker: internal_type.SpeakerCaller,
		Text:    t.Text,
		At:      t.End,
	})
	m.publisher.Publish(internal_events.TypeTranscript, map[string]interface{}{
		"text":         t.Text,
		"confidence":   t.Confidence,
		"utterance_id": t.UtteranceID,
	})

	switch m.state {
	case StateGreeting, StateCollecting:
		m.state = StateCollecting
		m.collect(ctx, t.Text)
	case StateConfirmingTime:
		m.confirmStep(ctx, t.Text)
	case StateAwaitingOperator:
		// Recorded above, but the booking is already with the operator;
		// nothing to act on.
	}
}

// OnUnintelligible records one rejected or empty transcript. Two in a row
// produce a reprompt; the fourth reprompt becomes a transfer and ends the
// call.
func (m *Machine) OnUnintelligible(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noteUnintelligible()
}

// OnInactivity nudges a silent caller. Strike counting toward termination is
// the session's concern.
func (m *Machine) OnInactivity(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() || m.state == StateAwaitingOperator {
		return
	}
	m.say(internal_type.AgentTurn{
		Text:          inactivityText,
		Tag:           internal_type.TurnTagPrompt,
		Interruptible: true,
	})
}

// OnProviderOutage ends the call with an apology when a provider failure
// cannot recover within this call (auth errors, hard 4xx). Calls already in
// operator review keep their draft; there is nothing left to say.
func (m *Machine) OnProviderOutage(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endWith(apologyText)
}

// OnInactivityTimeout closes a call whose caller has gone quiet for good.
// Reports whether a closing turn was produced; when it was not, the session
// must terminate on its own.
func (m *Machine) OnInactivityTimeout(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() || m.state == StateAwaitingOperator {
		return false
	}
	m.endWith(closingText)
	return true
}

// OnOperatorVerdict applies the operator decision. Approval may arrive after
// the caller has hung up and still produces the confirmed event and the
// persistence hook; it never produces audio.
func (m *Machine) OnOperatorVerdict(ctx context.Context, verdict internal_type.Verdict, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAwaitingOperator || m.draft.Status != BookingAwaitingOperator {
		return fmt.Errorf("%w: state %s, draft %s", ErrVerdictState, m.state, m.draft.Status)
	}

	switch verdict {
	case internal_type.VerdictApproved:
		m.draft.Status = BookingApproved
		m.state = StateFarewell
		m.publisher.Publish(internal_events.TypeBookingConfirmed, m.draftPayload(note))
		if m.OnBookingApproved != nil {
			if err := m.OnBookingApproved(ctx, m.draft); err != nil {
				m.logger.Errorw("dialog: booking persistence hook failed", "booking_id", m.draft.ID, "error", err)
				m.publisher.Publish(internal_events.TypeWarning, map[string]interface{}{
					"reason":     "persistence_hook_failed",
					"booking_id": m.draft.ID.String(),
				})
			}
		}
	case internal_type.VerdictRejected, internal_type.VerdictTimeout:
		m.draft.Status = BookingRejected
		m.state = StateAborted
		payload := m.draftPayload(note)
		payload["reason"] = string(verdict)
		m.publisher.Publish(internal_events.TypeBookingRejected, payload)
	default:
		return fmt.Errorf("unknown verdict %q", verdict)
	}
	return nil
}

// ====================================================================
// reducer internals, all called with m.mu held
// ====================================================================

// collect merges extracted slots and asks for the next missing one, or moves
// to confirmation when the draft is complete.
func (m *Machine) collect(ctx context.Context, text string) {
	out, err := m.nlu.Extract(ctx, m.historyCopy(), text, m.draft.Slots)
	if err != nil {
		m.logger.Warnw("dialog: intent extraction failed", "error", err)
		m.noteUnintelligible()
		return
	}
	// Only a consumed transcript breaks the bad-input streak.
	m.unintelligible = 0
	m.draft.Merge(out.Slots)
	m.advance()
}

// confirmStep handles a transcript while the summary confirmation is
// pending. A correction outranks an affirmative in the same transcript.
func (m *Machine) confirmStep(ctx context.Context, text string) {
	switch {
	case m.lexicon.IsCorrection(text) || m.lexicon.IsNegative(text):
		m.state = StateCollecting
		out, err := m.nlu.Extract(ctx, m.historyCopy(), text, m.draft.Slots)
		if err != nil {
			m.logger.Warnw("dialog: intent extraction failed", "error", err)
			m.noteUnintelligible()
			return
		}
		m.unintelligible = 0
		if len(m.draft.Merge(out.Slots)) == 0 {
			// Nothing identifiable changed; the contested detail in a
			// time confirmation is the time itself.
			m.draft.Slots[SlotAppointmentTime] = ""
		}
		m.advance()
	case m.lexicon.IsAffirmative(text):
		m.unintelligible = 0
		m.accept()
	default:
		// Neither a yes/no nor a marked correction; see if it carries a
		// usable detail before treating it as noise.
		out, err := m.nlu.Extract(ctx, m.historyCopy(), text, m.draft.Slots)
		if err != nil || len(m.draft.Merge(out.Slots)) == 0 {
			m.noteUnintelligible()
			return
		}
		m.unintelligible = 0
		m.state = StateCollecting
		m.advance()
	}
}

// advance asks for the next missing slot or produces the confirmation
// summary once the draft is complete.
func (m *Machine) advance() {
	if missing := m.draft.MissingSlot(); missing != "" {
		m.say(internal_type.AgentTurn{
			Text:          slotQuestions[missing],
			Tag:           internal_type.TurnTagPrompt,
			Interruptible: true,
		})
		return
	}
	m.state = StateConfirmingTime
	m.say(internal_type.AgentTurn{
		Text:          fmt.Sprintf("I have %s, is that correct?", m.summary()),
		Tag:           internal_type.TurnTagConfirm,
		Interruptible: true,
	})
}

// accept hands the confirmed draft to the operator and says goodbye. The
// farewell preamble yields to barge-in; the final sentence is terminal and
// plays to completion.
func (m *Machine) accept() {
	m.draft.Status = BookingAwaitingOperator
	m.state = StateAwaitingOperator
	m.publisher.Publish(internal_events.TypeBookingPending, m.draftPayload(""))
	m.say(internal_type.AgentTurn{
		Text:          farewellPreambleText,
		Tag:           internal_type.TurnTagFarewell,
		Interruptible: true,
	})
	m.say(internal_type.AgentTurn{
		Text:     farewellFinalText,
		Tag:      internal_type.TurnTagFarewell,
		Terminal: true,
	})
}

// endWith speaks one terminal turn and aborts, unless the call is already
// over or the booking is in operator review.
func (m *Machine) endWith(text string) {
	if m.state.Terminal() || m.state == StateAwaitingOperator {
		return
	}
	m.say(internal_type.AgentTurn{
		Text:     text,
		Tag:      internal_type.TurnTagFarewell,
		Terminal: true,
	})
	m.state = StateAborted
}

// noteUnintelligible counts consecutive bad input and escalates through
// reprompts to a transfer.
func (m *Machine) noteUnintelligible() {
	if m.state.Terminal() || m.state == StateAwaitingOperator {
		return
	}
	m.unintelligible++
	if m.unintelligible < unintelligibleThreshold {
		return
	}
	m.unintelligible = 0

	if m.reprompts >= repromptLimit {
		m.say(internal_type.AgentTurn{
			Text:     transferText,
			Tag:      internal_type.TurnTagFarewell,
			Terminal: true,
		})
		m.state = StateAborted
		return
	}
	m.reprompts++
	m.state = StateCollecting
	m.say(internal_type.AgentTurn{
		Text:          repromptText,
		Tag:           internal_type.TurnTagPrompt,
		Interruptible: true,
	})
}

// say records and publishes an agent turn, then hands it to the scheduler.
func (m *Machine) say(turn internal_type.AgentTurn) {
	m.history = append(m.history, internal_type.Turn{
		Speaker: internal_type.SpeakerAgent,
		Text:    turn.Text,
		At:      time.Now(),
	})
	m.publisher.Publish(internal_events.TypeAgentSaid, map[string]interface{}{
		"text": turn.Text,
		"tag":  string(turn.Tag),
	})
	if m.emit != nil {
		m.emit(turn)
	}
}

func (m *Machine) historyCopy() []internal_type.Turn {
	out := make([]internal_type.Turn, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Machine) summary() string {
	s := m.draft.Slots
	var b strings.Builder
	fmt.Fprintf(&b, "a %s appointment", s[SlotServiceType])
	fmt.Fprintf(&b, " at %s", s[SlotAddress])
	fmt.Fprintf(&b, " on %s", s[SlotAppointmentTime])
	fmt.Fprintf(&b, " for %s", s[SlotName])
	fmt.Fprintf(&b, ", phone number %s", s[SlotPhone])
	return b.String()
}

func (m *Machine) draftPayload(note string) map[string]interface{} {
	payload := map[string]interface{}{
		"booking_id": m.draft.ID.String(),
		"status":     string(m.draft.Status),
		"slots":      m.draft.Slots,
	}
	if note != "" {
		payload["note"] = note
	}
	return payload
}
