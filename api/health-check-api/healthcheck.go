// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package health_check_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/frontdesk/config"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"github.com/rapidaai/frontdesk/pkg/connectors"
)

// HealthCheckApi answers liveness and readiness probes.
type HealthCheckApi struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	postgres connectors.PostgresConnector // nil when no database is configured
}

func New(cfg *config.AppConfig, logger commons.Logger, postgres connectors.PostgresConnector) *HealthCheckApi {
	return &HealthCheckApi{
		cfg:      cfg,
		logger:   logger,
		postgres: postgres,
	}
}

// Healthz reports process liveness.
func (hc *HealthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": hc.cfg.Name,
		"version": hc.cfg.Version,
	})
}

// Readiness reports whether downstream dependencies are reachable.
func (hc *HealthCheckApi) Readiness(c *gin.Context) {
	if hc.postgres != nil {
		db, err := hc.postgres.DB(c.Request.Context()).DB()
		if err == nil {
			err = db.PingContext(c.Request.Context())
		}
		if err != nil {
			hc.logger.Warnw("healthcheck: postgres unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
