// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontext

import (
	"context"

	internal_dialog "github.com/rapidaai/frontdesk/api/voice-api/internal/dialog"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

// BookingHook is the post-approval persistence callback handed to sessions.
type BookingHook func(ctx context.Context, callID string, draft *internal_dialog.BookingDraft) error

// NewBookingHook persists operator-approved drafts as booking records.
// Downstream jobs (SMS confirmation, calendar) consume the table.
func NewBookingHook(store Store, logger commons.Logger) BookingHook {
	return func(ctx context.Context, callID string, draft *internal_dialog.BookingDraft) error {
		record := &BookingRecord{
			BookingID:       draft.ID.String(),
			CallID:          callID,
			ServiceType:     draft.Slots[internal_dialog.SlotServiceType],
			AppointmentTime: draft.Slots[internal_dialog.SlotAppointmentTime],
			Address:         draft.Slots[internal_dialog.SlotAddress],
			Phone:           draft.Slots[internal_dialog.SlotPhone],
			CustomerName:    draft.Slots[internal_dialog.SlotName],
		}
		return store.SaveBooking(ctx, record)
	}
}

// NewLoggingBookingHook is the fallback hook when no database is configured:
// the approved draft is logged and the confirmation event stream remains the
// system of record.
func NewLoggingBookingHook(logger commons.Logger) BookingHook {
	return func(ctx context.Context, callID string, draft *internal_dialog.BookingDraft) error {
		logger.Infow("booking approved",
			"call_id", callID,
			"booking_id", draft.ID.String(),
			"slots", draft.Slots)
		return nil
	}
}
