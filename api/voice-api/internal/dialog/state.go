// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialog

import (
	"github.com/google/uuid"
)

// State is the single dialog state tag. All transitions go through the
// machine's reducer; no side booleans.
type State string

const (
	StateGreeting         State = "greeting"
	StateCollecting       State = "collecting"
	StateConfirmingTime   State = "confirming_time"
	StateAwaitingOperator State = "awaiting_operator"
	StateFarewell         State = "farewell"
	StateAborted          State = "aborted"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateFarewell || s == StateAborted
}

// BookingStatus tracks a draft through the operator decision.
type BookingStatus string

const (
	BookingCollecting       BookingStatus = "collecting"
	BookingAwaitingOperator BookingStatus = "awaiting-operator"
	BookingApproved         BookingStatus = "approved"
	BookingRejected         BookingStatus = "rejected"
)

// Mandatory slot names, in the fixed order follow-up questions are asked.
const (
	SlotServiceType     = "service_type"
	SlotAddress         = "address"
	SlotAppointmentTime = "appointment_time"
	SlotPhone           = "phone"
	SlotName            = "name"
)

// slotOrder is the follow-up question priority.
var slotOrder = []string{SlotServiceType, SlotAddress, SlotAppointmentTime, SlotPhone, SlotName}

// slotQuestions maps each missing slot to its targeted follow-up.
var slotQuestions = map[string]string{
	SlotServiceType:     "What service do you need today?",
	SlotAddress:         "What's the service address?",
	SlotAppointmentTime: "What day and time work best for you?",
	SlotPhone:           "What's the best phone number to reach you?",
	SlotName:            "And who should I put the booking under?",
}

// BookingDraft is the accumulating slot set for one call. The dialog machine
// is its only writer.
type BookingDraft struct {
	ID     uuid.UUID
	Slots  map[string]string
	Status BookingStatus
}

// NewBookingDraft starts an empty draft in collecting status.
func NewBookingDraft() *BookingDraft {
	return &BookingDraft{
		ID:     uuid.New(),
		Slots:  make(map[string]string),
		Status: BookingCollecting,
	}
}

// MissingSlot returns the first unfilled mandatory slot in priority order,
// or "" when the draft is complete.
func (d *BookingDraft) MissingSlot() string {
	for _, name := range slotOrder {
		if d.Slots[name] == "" {
			return name
		}
	}
	return ""
}

// Complete reports whether every mandatory slot has a value.
func (d *BookingDraft) Complete() bool {
	return d.MissingSlot() == ""
}

// Merge overlays extracted slot values onto the draft, returning the names
// that changed. Empty values never overwrite.
func (d *BookingDraft) Merge(values map[string]string) []string {
	var changed []string
	for _, name := range slotOrder {
		v := values[name]
		if v == "" || v == d.Slots[name] {
			continue
		}
		d.Slots[name] = v
		changed = append(changed, name)
	}
	return changed
}
