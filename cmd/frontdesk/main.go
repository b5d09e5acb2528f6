// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	internal_callcontext "github.com/rapidaai/frontdesk/api/voice-api/callcontext"
	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_session "github.com/rapidaai/frontdesk/api/voice-api/session"
	internal_synthesize "github.com/rapidaai/frontdesk/api/voice-api/synthesize"
	internal_transcribe "github.com/rapidaai/frontdesk/api/voice-api/transcribe"
	internal_transformer_http "github.com/rapidaai/frontdesk/api/voice-api/transformer/http"
	internal_utterance "github.com/rapidaai/frontdesk/api/voice-api/utterance"
	internal_vad "github.com/rapidaai/frontdesk/api/voice-api/vad"
	voice_routers "github.com/rapidaai/frontdesk/api/voice-api/router"
	"github.com/rapidaai/frontdesk/config"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"github.com/rapidaai/frontdesk/pkg/connectors"
)

// Exit codes: 0 clean shutdown, 2 configuration error, 3 runtime failure,
// 130 interrupted.
const (
	exitConfig    = 2
	exitRuntime   = 3
	exitInterrupt = 130
)

// holdClip is internal-format audio (PCM16, 16 kHz, mono) played when
// synthesis fails on both voices, so the caller hears a hold cue instead of
// dead air.
//
//go:embed assets/holdtone.pcm
var holdClip []byte

func main() {
	v, err := config.InitConfig()
	if err != nil {
		log.Printf("config init failed: %v", err)
		os.Exit(exitConfig)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		log.Printf("config invalid: %v", err)
		os.Exit(exitConfig)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		log.Printf("logger init failed: %v", err)
		os.Exit(exitConfig)
	}
	defer logger.Sync()

	var postgres connectors.PostgresConnector
	var store internal_callcontext.Store
	hook := internal_callcontext.NewLoggingBookingHook(logger)
	if cfg.PostgresDSN != "" {
		postgres, err = connectors.NewPostgresConnector(cfg.PostgresDSN,
			&internal_callcontext.CallContext{},
			&internal_callcontext.BookingRecord{},
		)
		if err != nil {
			logger.Errorf("postgres connect failed: %v", err)
			os.Exit(exitRuntime)
		}
		defer postgres.Close()
		store = internal_callcontext.NewStore(postgres, logger)
		hook = internal_callcontext.NewBookingHook(store, logger)
	}

	burst := int(cfg.ProviderQPS)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.ProviderQPS), burst)
	providers := internal_session.Providers{
		STT: internal_transformer_http.NewHttpSpeechToText(logger, cfg.STTEndpoint, cfg.STTApiKey, cfg.STTModel, limiter),
		TTS: internal_transformer_http.NewHttpTextToSpeech(logger, cfg.TTSEndpoint, cfg.TTSApiKey, limiter),
		NLU: internal_transformer_http.NewHttpIntentExtractor(logger, cfg.NLUEndpoint, cfg.NLUApiKey, limiter),
	}

	bus := internal_events.NewBus(logger)
	manager := internal_session.NewManager(logger, bus, providers, hook, sessionConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	voice_routers.HealthCheckRoutes(cfg, engine, logger, postgres)
	voice_routers.TalkApiRoute(cfg, engine, logger, manager, store, bus)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{Addr: addr, Handler: engine}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	logger.Infof("%s %s listening on %s", cfg.Name, cfg.Version, addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	code := 0
	select {
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
		code = exitInterrupt
	case err := <-serverErr:
		logger.Errorf("http server failed: %v", err)
		code = exitRuntime
	}

	manager.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	cancel()
	logger.Sync()
	os.Exit(code)
}

// sessionConfig maps the flat environment config onto the per-call pipeline
// config.
func sessionConfig(cfg *config.AppConfig) internal_session.Config {
	sc := internal_session.DefaultConfig()
	sc.FrameMs = cfg.VADFrameMs
	sc.QueueDepth = cfg.UtteranceQueueDepth
	sc.CallMax = time.Duration(cfg.CallMaxSec) * time.Second
	sc.CallerSilence = time.Duration(cfg.CallerSilenceSec) * time.Second
	sc.OperatorTimeout = time.Duration(cfg.OperatorTimeoutSec) * time.Second

	sc.VAD = internal_vad.Config{
		Aggressiveness: cfg.VADAggressiveness,
		FrameMs:        cfg.VADFrameMs,
		SilenceTimeout: secs(cfg.SilenceTimeoutSec),
		MinSpeech:      secs(cfg.MinSpeechSec),
		PrerollIgnore:  secs(cfg.PrerollIgnoreSec),
		MinStartRMS:    cfg.MinStartRMS,
	}
	sc.Utterance = internal_utterance.Config{
		MinDuration: time.Duration(cfg.MinUtteranceMs) * time.Millisecond,
		MinPeakRMS:  cfg.MinUtteranceRMS,
	}

	tc := internal_transcribe.DefaultConfig()
	tc.ConfidenceThreshold = cfg.STTConfThreshold
	tc.RequestTimeout = secs(cfg.STTTimeoutSec)
	tc.FailureStreak = cfg.STTFailureStreak
	sc.Transcribe = tc

	sc.Synthesize = internal_synthesize.Config{
		VoiceID:         cfg.TTSVoiceID,
		FallbackVoiceID: cfg.TTSFallbackVoiceID,
		FallbackClipPCM: holdClip,
	}
	return sc
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
