// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontext

import (
	"context"
	"fmt"
	"time"

	"github.com/rapidaai/frontdesk/pkg/commons"
	"github.com/rapidaai/frontdesk/pkg/connectors"
)

// Store provides operations to save and retrieve call contexts and booking
// records from Postgres.
//
// Call contexts live for the entire duration of a call. Provider status
// callbacks can arrive at any time, including after the media stream has
// disconnected, so rows are never deleted during the call lifecycle; they
// only transition through statuses: pending → claimed → completed/failed.
type Store interface {
	// Save stores a call context. The call id must be set by the caller.
	Save(ctx context.Context, cc *CallContext) error

	// Get retrieves a call context by call id regardless of status. Late
	// provider callbacks must still resolve completed rows.
	Get(ctx context.Context, callID string) (*CallContext, error)

	// Claim atomically transitions a call context from "pending" to
	// "claimed". Only one concurrent media connection can win; later
	// callers get an error because the row is no longer claimable.
	Claim(ctx context.Context, callID string) (*CallContext, error)

	// Complete marks a call context as completed when the session ends.
	Complete(ctx context.Context, callID string) error

	// Fail marks a call context as failed during setup or execution.
	Fail(ctx context.Context, callID string) error

	// SaveBooking stores one approved booking record.
	SaveBooking(ctx context.Context, record *BookingRecord) error
}

type postgresStore struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

// NewStore creates a call context store backed by Postgres.
func NewStore(postgres connectors.PostgresConnector, logger commons.Logger) Store {
	return &postgresStore{
		postgres: postgres,
		logger:   logger,
	}
}

func (s *postgresStore) Save(ctx context.Context, cc *CallContext) error {
	if cc.Status == "" {
		cc.Status = StatusPending
	}

	db := s.postgres.DB(ctx)
	if err := db.Create(cc).Error; err != nil {
		return fmt.Errorf("failed to save call context %s: %w", cc.CallID, err)
	}

	s.logger.Infof("saved call context: callId=%s, provider=%s, caller=%s",
		cc.CallID, cc.Provider, cc.CallerPhone)
	return nil
}

func (s *postgresStore) Get(ctx context.Context, callID string) (*CallContext, error) {
	db := s.postgres.DB(ctx)
	var cc CallContext
	if err := db.Where("call_id = ?", callID).First(&cc).Error; err != nil {
		return nil, fmt.Errorf("call context not found: %s: %w", callID, err)
	}

	s.logger.Debugf("resolved call context: callId=%s, status=%s", cc.CallID, cc.Status)
	return &cc, nil
}

// Claim uses an atomic UPDATE ... WHERE status = 'pending' so only one
// concurrent media connection can win. The row stays in the database for
// late provider callbacks.
func (s *postgresStore) Claim(ctx context.Context, callID string) (*CallContext, error) {
	db := s.postgres.DB(ctx)

	result := db.Model(&CallContext{}).
		Where("call_id = ? AND status = ?", callID, StatusPending).
		Updates(map[string]interface{}{
			"status":       StatusClaimed,
			"updated_date": time.Now(),
		})

	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim call context %s: %w", callID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("call context %s not found or already claimed", callID)
	}

	var cc CallContext
	if err := db.Where("call_id = ?", callID).First(&cc).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch claimed call context %s: %w", callID, err)
	}

	s.logger.Debugf("claimed call context: callId=%s", cc.CallID)
	return &cc, nil
}

func (s *postgresStore) Complete(ctx context.Context, callID string) error {
	return s.setStatus(ctx, callID, StatusCompleted)
}

func (s *postgresStore) Fail(ctx context.Context, callID string) error {
	return s.setStatus(ctx, callID, StatusFailed)
}

func (s *postgresStore) setStatus(ctx context.Context, callID, status string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&CallContext{}).
		Where("call_id = ?", callID).
		Updates(map[string]interface{}{
			"status":       status,
			"updated_date": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark call context %s %s: %w", callID, status, result.Error)
	}

	s.logger.Debugf("call context %s: callId=%s", status, callID)
	return nil
}

func (s *postgresStore) SaveBooking(ctx context.Context, record *BookingRecord) error {
	db := s.postgres.DB(ctx)
	if err := db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to save booking %s: %w", record.BookingID, err)
	}

	s.logger.Infof("saved booking record: bookingId=%s, callId=%s, service=%s",
		record.BookingID, record.CallID, record.ServiceType)
	return nil
}
