// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_routers

import (
	"github.com/gin-gonic/gin"

	healthCheckApi "github.com/rapidaai/frontdesk/api/health-check-api"
	"github.com/rapidaai/frontdesk/config"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"github.com/rapidaai/frontdesk/pkg/connectors"
)

func HealthCheckRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, postgres connectors.PostgresConnector) {
	logger.Info("Internal HealthCheckRoutes and Connectors added to engine.")
	apiv1 := engine.Group("")
	hcApi := healthCheckApi.New(cfg, logger, postgres)
	{
		apiv1.GET("/readiness", hcApi.Readiness)
		apiv1.GET("/healthz", hcApi.Healthz)
	}
}
