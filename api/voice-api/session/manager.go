// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	internal_dialog "github.com/rapidaai/frontdesk/api/voice-api/internal/dialog"
	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

// attachTimeout is how long a webhook-created session waits for the provider
// to open the media WebSocket before it is reaped.
const attachTimeout = time.Minute

// Manager is the call registry. Sessions are created by the webhook, bound
// to their media WebSocket on attach, and kept alive after hangup while a
// booking still awaits its operator verdict.
type Manager struct {
	logger            commons.Logger
	cfg               Config
	bus               *internal_events.Bus
	providers         Providers
	onBookingApproved func(ctx context.Context, callID string, draft *internal_dialog.BookingDraft) error

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session  *Session
	attached chan struct{}
	once     sync.Once
}

// NewManager builds a session manager.
func NewManager(
	logger commons.Logger,
	bus *internal_events.Bus,
	providers Providers,
	onBookingApproved func(ctx context.Context, callID string, draft *internal_dialog.BookingDraft) error,
	cfg Config,
) *Manager {
	return &Manager{
		logger:            logger,
		cfg:               cfg,
		bus:               bus,
		providers:         providers,
		onBookingApproved: onBookingApproved,
		sessions:          make(map[string]*entry),
	}
}

// Create allocates a session for an accepted webhook and returns its call
// id. The session is reaped if the media WebSocket never opens.
func (m *Manager) Create() (string, error) {
	callID := uuid.NewString()
	session, err := NewSession(m.logger, callID, m.bus, m.providers, m.onBookingApproved, m.cfg)
	if err != nil {
		return "", fmt.Errorf("session: create %s: %w", callID, err)
	}

	e := &entry{session: session, attached: make(chan struct{})}
	m.mu.Lock()
	m.sessions[callID] = e
	m.mu.Unlock()
	m.bus.RegisterCommandTarget(callID, session)

	go func() {
		select {
		case <-e.attached:
		case <-time.After(attachTimeout):
			m.logger.Warnw("session: media socket never opened, reaping", "call_id", callID)
			m.remove(callID)
		}
	}()

	m.logger.Infow("session: created", "call_id", callID)
	return callID, nil
}

// Attach binds the media WebSocket to its session and runs the call to
// completion. Blocks for the call's lifetime.
func (m *Manager) Attach(ctx context.Context, callID string, conn *websocket.Conn) error {
	m.mu.Lock()
	e, ok := m.sessions[callID]
	m.mu.Unlock()
	if !ok {
		return internal_events.ErrNotFound
	}
	e.once.Do(func() { close(e.attached) })

	err := e.session.Run(ctx, conn)
	m.afterRun(e.session)
	return err
}

// Len reports the number of registered calls.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown terminates every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.session.Shutdown("server_shutdown")
	}
}

// afterRun decides what happens to a session once its media transport is
// gone: bookings awaiting their verdict stay registered until the operator
// decides or times out; everything else is removed immediately.
func (m *Manager) afterRun(s *Session) {
	if s.Machine().State() != internal_dialog.StateAwaitingOperator {
		m.remove(s.CallID())
		return
	}

	m.logger.Infow("session: call ended, awaiting operator verdict", "call_id", s.CallID())
	go func() {
		timer := time.NewTimer(m.cfg.OperatorTimeout)
		defer timer.Stop()
		select {
		case <-s.Decided():
		case <-timer.C:
			if err := s.Machine().OnOperatorVerdict(context.Background(), internal_type.VerdictTimeout, "operator timeout"); err != nil {
				m.logger.Debugf("session: operator timeout race on %s: %v", s.CallID(), err)
			}
		}
		m.remove(s.CallID())
	}()
}

func (m *Manager) remove(callID string) {
	m.bus.UnregisterCommandTarget(callID)
	m.mu.Lock()
	delete(m.sessions, callID)
	m.mu.Unlock()
}
