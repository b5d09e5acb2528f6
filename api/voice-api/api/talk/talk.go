// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_talk_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/twilio/twilio-go/twiml"

	internal_callcontext "github.com/rapidaai/frontdesk/api/voice-api/callcontext"
	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_session "github.com/rapidaai/frontdesk/api/voice-api/session"
	"github.com/rapidaai/frontdesk/config"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

var mediaUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TalkApi serves the inbound-call surface: the Twilio voice webhook, the
// media stream WebSocket, and the operator event WebSocket.
type TalkApi struct {
	cfg     *config.AppConfig
	logger  commons.Logger
	manager *internal_session.Manager
	store   internal_callcontext.Store // nil when no database is configured
	bus     *internal_events.Bus
}

// NewTalkApi builds the talk API.
func NewTalkApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	manager *internal_session.Manager,
	store internal_callcontext.Store,
	bus *internal_events.Bus,
) *TalkApi {
	return &TalkApi{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		store:   store,
		bus:     bus,
	}
}

// inboundCallRequest is the webhook body. Twilio posts a form; other
// integrations send the same fields as JSON.
type inboundCallRequest struct {
	From    string `form:"From" json:"From"`
	To      string `form:"To" json:"To"`
	CallSid string `form:"CallSid" json:"CallSid"`
}

// TwilioCallReceiver accepts an inbound call webhook, allocates the session,
// and answers with TwiML directing the provider to open the media stream.
//
// @Router /v1/talk/twilio/call [post]
func (api *TalkApi) TwilioCallReceiver(c *gin.Context) {
	var req inboundCallRequest
	if err := c.ShouldBind(&req); err != nil {
		// The call is still answerable; only the call context record
		// loses its caller details.
		api.logger.Warnw("talk: unreadable webhook body", "error", err)
	}

	callID, err := api.manager.Create()
	if err != nil {
		api.logger.Errorw("talk: session create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to accept call"})
		return
	}

	if api.store != nil {
		cc := &internal_callcontext.CallContext{
			CallID:      callID,
			Provider:    "twilio",
			CallerPhone: req.From,
			CalleePhone: req.To,
			ChannelUUID: req.CallSid,
		}
		if err := api.store.Save(c.Request.Context(), cc); err != nil {
			api.logger.Errorw("talk: call context save failed", "call_id", callID, "error", err)
		}
	}

	streamURL := fmt.Sprintf("wss://%s/v1/talk/twilio/media/%s", api.cfg.PublicHost, callID)
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceConnect{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: streamURL},
			},
		},
	})
	if err != nil {
		api.logger.Errorw("talk: twiml render failed", "call_id", callID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to accept call"})
		return
	}

	api.logger.Infow("talk: inbound call accepted", "call_id", callID, "caller", req.From, "call_sid", req.CallSid)
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, doc)
}

// TwilioMediaStream upgrades the provider media connection, claims the call
// context, and runs the session for the call's lifetime.
//
// @Router /v1/talk/twilio/media/:callId [get]
func (api *TalkApi) TwilioMediaStream(c *gin.Context) {
	callID := c.Param("callId")

	conn, err := mediaUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorf("talk: media upgrade failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to upgrade to WebSocket"})
		return
	}

	if api.store != nil {
		if _, err := api.store.Claim(c.Request.Context(), callID); err != nil {
			api.logger.Warnw("talk: media claim rejected", "call_id", callID, "error", err)
			conn.Close()
			return
		}
	}

	err = api.manager.Attach(c.Request.Context(), callID, conn)
	switch {
	case errors.Is(err, internal_events.ErrNotFound):
		api.logger.Warnw("talk: media stream for unknown call", "call_id", callID)
		conn.Close()
		return
	case err != nil:
		api.logger.Warnw("talk: session ended with error", "call_id", callID, "error", err)
	}

	if api.store != nil {
		if err := api.store.Complete(context.Background(), callID); err != nil {
			api.logger.Errorw("talk: call context complete failed", "call_id", callID, "error", err)
		}
	}
}

// OperatorStream upgrades an operator subscriber: events from every live
// session flow out, approve/reject commands flow back in.
//
// @Router /v1/talk/operator [get]
func (api *TalkApi) OperatorStream(c *gin.Context) {
	conn, err := mediaUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorf("talk: operator upgrade failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to upgrade to WebSocket"})
		return
	}
	defer conn.Close()

	sub := api.bus.Subscribe()
	defer api.bus.Unsubscribe(sub)

	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub.Events() {
			if err := writeJSON(evt); err != nil {
				api.logger.Debugf("talk: operator write failed: %v", err)
				conn.Close()
				return
			}
		}
	}()

	for {
		var cmd internal_events.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		if err := api.bus.Deliver(c.Request.Context(), cmd); err != nil {
			status := "error"
			if errors.Is(err, internal_events.ErrNotFound) {
				status = "not_found"
			}
			writeJSON(gin.H{
				"type":       status,
				"call_id":    cmd.CallID,
				"booking_id": cmd.BookingID,
				"error":      err.Error(),
			})
		}
	}
	<-done
}
