// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontext

import (
	"time"

	"gorm.io/gorm"
)

// Call context status constants.
const (
	StatusPending   = "pending"   // created by the webhook, waiting for media connection
	StatusClaimed   = "claimed"   // media WebSocket established
	StatusCompleted = "completed" // call ended normally
	StatusFailed    = "failed"    // call setup or execution failed
)

// CallContext bridges the HTTP webhook that accepts a call and the media
// WebSocket that follows. Telephony providers fire status callbacks
// asynchronously, so the row is never deleted during the call lifecycle; it
// only transitions pending → claimed → completed/failed. The status column
// provides atomic claiming: only one media connection wins pending→claimed.
type CallContext struct {
	Id          uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	CallID      string    `json:"callId" gorm:"column:call_id;type:varchar(36);not null;uniqueIndex"`
	Status      string    `json:"status" gorm:"column:status;type:varchar(20);not null;default:pending"`
	Provider    string    `json:"provider" gorm:"column:provider;type:varchar(50);not null;default:''"`
	CallerPhone string    `json:"callerPhone" gorm:"column:caller_phone;type:varchar(50);not null;default:''"`
	CalleePhone string    `json:"calleePhone" gorm:"column:callee_phone;type:varchar(50);not null;default:''"`
	CreatedDate time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:NOW();<-:create"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"type:timestamp;default:null"`

	// ChannelUUID is the provider-specific call identifier (Twilio CallSid).
	// Stored so any telephony operation can reference the live call.
	ChannelUUID string `json:"channelUuid" gorm:"column:channel_uuid;type:varchar(200);not null;default:''"`
}

func (CallContext) TableName() string {
	return "call_contexts"
}

func (cc *CallContext) BeforeCreate(tx *gorm.DB) (err error) {
	if cc.CreatedDate.IsZero() {
		cc.CreatedDate = time.Now()
	}
	return nil
}

// IsPending returns true if the context has not yet been claimed.
func (cc *CallContext) IsPending() bool {
	return cc.Status == StatusPending
}

// IsClaimed returns true if the context has been claimed by a media connection.
func (cc *CallContext) IsClaimed() bool {
	return cc.Status == StatusClaimed
}

// BookingRecord is the durable copy of an operator-approved booking draft.
// Written once by the approval hook; downstream jobs (SMS, calendar) read it.
type BookingRecord struct {
	Id              uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	BookingID       string    `json:"bookingId" gorm:"column:booking_id;type:varchar(36);not null;uniqueIndex"`
	CallID          string    `json:"callId" gorm:"column:call_id;type:varchar(36);not null;index"`
	ServiceType     string    `json:"serviceType" gorm:"column:service_type;type:varchar(200);not null;default:''"`
	AppointmentTime string    `json:"appointmentTime" gorm:"column:appointment_time;type:varchar(200);not null;default:''"`
	Address         string    `json:"address" gorm:"column:address;type:text;not null;default:''"`
	Phone           string    `json:"phone" gorm:"column:phone;type:varchar(50);not null;default:''"`
	CustomerName    string    `json:"customerName" gorm:"column:customer_name;type:varchar(200);not null;default:''"`
	CreatedDate     time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:NOW();<-:create"`
}

func (BookingRecord) TableName() string {
	return "booking_records"
}

func (b *BookingRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if b.CreatedDate.IsZero() {
		b.CreatedDate = time.Now()
	}
	return nil
}
