// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_routers

import (
	"github.com/gin-gonic/gin"

	voiceTalkApi "github.com/rapidaai/frontdesk/api/voice-api/api/talk"
	internal_callcontext "github.com/rapidaai/frontdesk/api/voice-api/callcontext"
	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_session "github.com/rapidaai/frontdesk/api/voice-api/session"
	"github.com/rapidaai/frontdesk/config"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

func TalkApiRoute(
	cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	manager *internal_session.Manager,
	store internal_callcontext.Store,
	bus *internal_events.Bus,
) {
	apiv1 := engine.Group("v1/talk")
	talkApi := voiceTalkApi.NewTalkApi(cfg, logger, manager, store, bus)
	{
		// inbound call webhook
		apiv1.POST("/twilio/call", talkApi.TwilioCallReceiver)
		// bidirectional media stream opened by the provider
		apiv1.GET("/twilio/media/:callId", talkApi.TwilioMediaStream)
		// operator event stream + approve/reject commands
		apiv1.GET("/operator", talkApi.OperatorStream)
	}
}
