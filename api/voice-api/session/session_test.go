// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_codec "github.com/rapidaai/frontdesk/api/voice-api/internal/codec"
	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_synthesize "github.com/rapidaai/frontdesk/api/voice-api/synthesize"
	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-session"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

// ====================================================================
// provider fakes
// ====================================================================

type fakeSTT struct{}

func (fakeSTT) Name() string { return "fake-stt" }
func (fakeSTT) Transform(ctx context.Context, wav []byte) (*internal_transformer.Transcription, error) {
	return &internal_transformer.Transcription{Text: "hello", AvgLogProb: -0.1}, nil
}

type fakeTTS struct{}

func (fakeTTS) Name() string { return "fake-tts" }
func (fakeTTS) Transform(ctx context.Context, text, voiceID string) ([]byte, error) {
	// One wire frame of internal-format audio.
	return make([]byte, 640), nil
}

type fakeNLU struct{}

func (fakeNLU) Name() string { return "fake-nlu" }
func (fakeNLU) Extract(ctx context.Context, history []internal_type.Turn, utterance string, slots map[string]string) (*internal_transformer.IntentExtraction, error) {
	return &internal_transformer.IntentExtraction{}, nil
}

func testProviders() Providers {
	return Providers{STT: fakeSTT{}, TTS: fakeTTS{}, NLU: fakeNLU{}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Synthesize = internal_synthesize.Config{VoiceID: "alloy", FrameInterval: time.Millisecond}
	return cfg
}

// ====================================================================
// transport harness
// ====================================================================

// wsPair opens a connected WebSocket pair over an httptest server.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	serverCh := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			serverCh <- conn
		}
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of websocket pair never arrived")
	}
	return server, client
}

// clientDrain reads outbound envelopes until the socket closes.
type clientDrain struct {
	mu    sync.Mutex
	media int
	marks int
}

func (c *clientDrain) run(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := internal_codec.ParseEnvelope(raw)
		if err != nil {
			continue
		}
		c.mu.Lock()
		switch env.Event {
		case internal_codec.EventMedia:
			c.media++
		case internal_codec.EventMark:
			c.marks++
		}
		c.mu.Unlock()
	}
}

func (c *clientDrain) mediaCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env *internal_codec.Envelope) {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func collectEvents(sub *internal_events.Subscriber) map[internal_events.Type][]internal_events.Event {
	out := map[internal_events.Type][]internal_events.Event{}
	for {
		select {
		case evt := <-sub.Events():
			out[evt.Type] = append(out[evt.Type], evt)
		default:
			return out
		}
	}
}

// ====================================================================
// tests
// ====================================================================

func TestSessionRunsUntilStopEnvelope(t *testing.T) {
	logger := newTestLogger(t)
	bus := internal_events.NewBus(logger)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	session, err := NewSession(logger, "call-1", bus, testProviders(), nil, testConfig())
	require.NoError(t, err)

	server, client := wsPair(t)
	drain := &clientDrain{}
	go drain.run(client)

	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(context.Background(), server) }()

	sendEnvelope(t, client, &internal_codec.Envelope{
		Event: internal_codec.EventStart,
		Start: &internal_codec.StartPayload{StreamSid: "MZ1", CallSid: "CA1"},
	})

	// The greeting plays out before we hang up.
	require.Eventually(t, func() bool {
		return drain.mediaCount() >= 1
	}, 3*time.Second, 2*time.Millisecond)

	sendEnvelope(t, client, &internal_codec.Envelope{Event: internal_codec.EventStop})

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop on stop envelope")
	}

	events := collectEvents(sub)
	require.Len(t, events[internal_events.TypeCallStarted], 1)
	assert.NotEmpty(t, events[internal_events.TypeAgentSaid])
	ended := events[internal_events.TypeCallEnded]
	require.Len(t, ended, 1)
	assert.Equal(t, "transport_closed", ended[0].Data["reason"])
}

func TestSessionMalformedFramesAreCounted(t *testing.T) {
	logger := newTestLogger(t)
	bus := internal_events.NewBus(logger)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	session, err := NewSession(logger, "call-1", bus, testProviders(), nil, testConfig())
	require.NoError(t, err)

	server, client := wsPair(t)
	go (&clientDrain{}).run(client)

	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(context.Background(), server) }()

	// Not JSON, then a media event whose payload is not base64. Both are
	// dropped without ending the call.
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("not json")))
	sendEnvelope(t, client, &internal_codec.Envelope{
		Event: internal_codec.EventMedia,
		Media: &internal_codec.MediaPayload{Payload: "@@not-base64@@"},
	})
	sendEnvelope(t, client, &internal_codec.Envelope{Event: internal_codec.EventStop})

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}

	ended := collectEvents(sub)[internal_events.TypeCallEnded]
	require.Len(t, ended, 1)
	// One envelope-level reject plus one base64 reject.
	assert.Equal(t, uint64(2), ended[0].Data["malformed_frames"])
}

func TestSessionShutdownFirstReasonWins(t *testing.T) {
	logger := newTestLogger(t)
	bus := internal_events.NewBus(logger)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	session, err := NewSession(logger, "call-1", bus, testProviders(), nil, testConfig())
	require.NoError(t, err)

	server, client := wsPair(t)
	go (&clientDrain{}).run(client)

	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(context.Background(), server) }()

	session.Shutdown("caller_inactive")
	session.Shutdown("transport_closed")

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop on shutdown")
	}

	ended := collectEvents(sub)[internal_events.TypeCallEnded]
	require.Len(t, ended, 1)
	assert.Equal(t, "caller_inactive", ended[0].Data["reason"])
}

func TestSessionShutdownBeforeAttach(t *testing.T) {
	logger := newTestLogger(t)
	bus := internal_events.NewBus(logger)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	session, err := NewSession(logger, "call-1", bus, testProviders(), nil, testConfig())
	require.NoError(t, err)

	// Server shutdown can hit a webhook-created session whose media socket
	// has not opened yet. The request must survive until Run.
	session.Shutdown("server_shutdown")

	server, client := wsPair(t)
	go (&clientDrain{}).run(client)

	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(context.Background(), server) }()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session ignored the earlier shutdown request")
	}

	ended := collectEvents(sub)[internal_events.TypeCallEnded]
	require.Len(t, ended, 1)
	assert.Equal(t, "server_shutdown", ended[0].Data["reason"])
}

func TestSessionOperatorCommandValidation(t *testing.T) {
	logger := newTestLogger(t)
	bus := internal_events.NewBus(logger)

	session, err := NewSession(logger, "call-1", bus, testProviders(), nil, testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	err = session.HandleOperatorCommand(ctx, internal_events.Command{
		Type: "approve", CallID: "call-1", BookingID: "not-the-booking",
	})
	assert.ErrorIs(t, err, internal_events.ErrNotFound)

	bookingID := session.Machine().Draft().ID.String()
	err = session.HandleOperatorCommand(ctx, internal_events.Command{
		Type: "escalate", CallID: "call-1", BookingID: bookingID,
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, internal_events.ErrNotFound)

	// No booking has been confirmed with the caller yet.
	err = session.HandleOperatorCommand(ctx, internal_events.Command{
		Type: "approve", CallID: "call-1", BookingID: bookingID,
	})
	assert.Error(t, err)
}

func TestManagerLifecycle(t *testing.T) {
	logger := newTestLogger(t)
	bus := internal_events.NewBus(logger)

	m := NewManager(logger, bus, testProviders(), nil, testConfig())

	callID, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	server, client := wsPair(t)
	go (&clientDrain{}).run(client)

	attachDone := make(chan error, 1)
	go func() { attachDone <- m.Attach(context.Background(), callID, server) }()

	sendEnvelope(t, client, &internal_codec.Envelope{
		Event: internal_codec.EventStart,
		Start: &internal_codec.StartPayload{StreamSid: "MZ1"},
	})
	sendEnvelope(t, client, &internal_codec.Envelope{Event: internal_codec.EventStop})

	select {
	case err := <-attachDone:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("attach did not return after stop")
	}

	// The call never reached operator review, so it is gone immediately.
	assert.Equal(t, 0, m.Len())
	err = bus.Deliver(context.Background(), internal_events.Command{Type: "approve", CallID: callID})
	assert.ErrorIs(t, err, internal_events.ErrNotFound)
}

func TestManagerAttachUnknownCall(t *testing.T) {
	logger := newTestLogger(t)
	m := NewManager(logger, internal_events.NewBus(logger), testProviders(), nil, testConfig())

	server, _ := wsPair(t)
	err := m.Attach(context.Background(), "no-such-call", server)
	assert.ErrorIs(t, err, internal_events.ErrNotFound)
}
