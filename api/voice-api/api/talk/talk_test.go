// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_talk_api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_session "github.com/rapidaai/frontdesk/api/voice-api/session"
	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/config"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-talk"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

type fakeSTT struct{}

func (fakeSTT) Name() string { return "fake-stt" }
func (fakeSTT) Transform(ctx context.Context, wav []byte) (*internal_transformer.Transcription, error) {
	return &internal_transformer.Transcription{Text: "hello", AvgLogProb: -0.1}, nil
}

type fakeTTS struct{}

func (fakeTTS) Name() string { return "fake-tts" }
func (fakeTTS) Transform(ctx context.Context, text, voiceID string) ([]byte, error) {
	return make([]byte, 640), nil
}

type fakeNLU struct{}

func (fakeNLU) Name() string { return "fake-nlu" }
func (fakeNLU) Extract(ctx context.Context, history []internal_type.Turn, utterance string, slots map[string]string) (*internal_transformer.IntentExtraction, error) {
	return &internal_transformer.IntentExtraction{}, nil
}

func newTestTalkApi(t *testing.T) (*TalkApi, *internal_session.Manager) {
	t.Helper()
	logger := newTestLogger(t)
	bus := internal_events.NewBus(logger)
	providers := internal_session.Providers{STT: fakeSTT{}, TTS: fakeTTS{}, NLU: fakeNLU{}}
	manager := internal_session.NewManager(logger, bus, providers, nil, internal_session.DefaultConfig())
	api := NewTalkApi(&config.AppConfig{PublicHost: "voice.example.test"}, logger, manager, nil, bus)
	return api, manager
}

func TestTwilioCallReceiverBindsFormAndJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{
			name:        "form body",
			contentType: "application/x-www-form-urlencoded",
			body: url.Values{
				"From":    {"+15550100"},
				"To":      {"+15550111"},
				"CallSid": {"CA100"},
			}.Encode(),
		},
		{
			name:        "json body",
			contentType: "application/json",
			body:        `{"From":"+15550100","To":"+15550111","CallSid":"CA100"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, manager := newTestTalkApi(t)
			engine := gin.New()
			engine.POST("/v1/talk/twilio/call", api.TwilioCallReceiver)

			req := httptest.NewRequest(http.MethodPost, "/v1/talk/twilio/call", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "text/xml")
			assert.Contains(t, w.Body.String(), "wss://voice.example.test/v1/talk/twilio/media/")
			assert.Equal(t, 1, manager.Len())
		})
	}
}
