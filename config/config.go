// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the full application configuration. Every knob is an
// environment variable; defaults are set in setDefault so the server starts
// with nothing but provider credentials.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"http_host" validate:"required"`
	Port     int    `mapstructure:"http_port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path" validate:"required"`

	// PublicHost is the externally reachable host used to build the
	// wss:// media stream URL handed back to the telephony provider.
	PublicHost string `mapstructure:"public_host" validate:"required"`

	// PostgresDSN is optional; without it call contexts and approved
	// bookings are not persisted and the approval hook only logs.
	PostgresDSN string `mapstructure:"postgres_dsn"`

	// Speech-to-text provider.
	STTEndpoint      string  `mapstructure:"stt_endpoint"`
	STTApiKey        string  `mapstructure:"stt_api_key"`
	STTModel         string  `mapstructure:"stt_model"`
	STTConfThreshold float64 `mapstructure:"stt_conf_threshold"`
	STTTimeoutSec    float64 `mapstructure:"stt_timeout_sec" validate:"gt=0"`
	STTFailureStreak int     `mapstructure:"stt_failure_streak" validate:"gt=0"`

	// Text-to-speech provider.
	TTSEndpoint        string `mapstructure:"tts_endpoint"`
	TTSApiKey          string `mapstructure:"tts_api_key"`
	TTSVoiceID         string `mapstructure:"tts_voice_id"`
	TTSFallbackVoiceID string `mapstructure:"tts_fallback_voice_id"`

	// Intent extraction provider.
	NLUEndpoint string `mapstructure:"nlu_endpoint"`
	NLUApiKey   string `mapstructure:"nlu_api_key"`

	// Voice activity detection.
	VADAggressiveness int     `mapstructure:"vad_aggressiveness" validate:"min=0,max=3"`
	VADFrameMs        int     `mapstructure:"vad_frame_ms" validate:"oneof=20 30"`
	SilenceTimeoutSec float64 `mapstructure:"silence_timeout_sec" validate:"gt=0"`
	MinSpeechSec      float64 `mapstructure:"min_speech_sec" validate:"gt=0"`
	PrerollIgnoreSec  float64 `mapstructure:"preroll_ignore_sec" validate:"min=0"`
	MinStartRMS       float64 `mapstructure:"min_start_rms" validate:"min=0"`

	// Utterance gates.
	MinUtteranceMs      int     `mapstructure:"min_utterance_ms" validate:"gt=0"`
	MinUtteranceRMS     float64 `mapstructure:"min_utterance_rms" validate:"min=0"`
	UtteranceQueueDepth int     `mapstructure:"utterance_queue_depth" validate:"gt=0"`

	// Session timeouts.
	CallMaxSec         int `mapstructure:"call_max_sec" validate:"gt=0"`
	CallerSilenceSec   int `mapstructure:"caller_silence_sec" validate:"gt=0"`
	OperatorTimeoutSec int `mapstructure:"operator_timeout_sec" validate:"gt=0"`

	// Shared provider rate limit (queries per second across all sessions).
	ProviderQPS float64 `mapstructure:"provider_qps" validate:"gt=0"`
}

// InitConfig reads configuration from the environment (and an optional .env
// file pointed at by ENV_PATH) into viper.
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "frontdesk")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 9090)
	v.SetDefault("PUBLIC_HOST", "localhost:9090")
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "./log")
	v.SetDefault("POSTGRES_DSN", "")

	v.SetDefault("STT_ENDPOINT", "")
	v.SetDefault("STT_API_KEY", "")
	v.SetDefault("STT_MODEL", "whisper-1")
	v.SetDefault("STT_CONF_THRESHOLD", -0.7)
	v.SetDefault("STT_TIMEOUT_SEC", 8.0)
	v.SetDefault("STT_FAILURE_STREAK", 5)

	v.SetDefault("TTS_ENDPOINT", "")
	v.SetDefault("TTS_API_KEY", "")
	v.SetDefault("TTS_VOICE_ID", "")
	v.SetDefault("TTS_FALLBACK_VOICE_ID", "")

	v.SetDefault("NLU_ENDPOINT", "")
	v.SetDefault("NLU_API_KEY", "")

	v.SetDefault("VAD_AGGRESSIVENESS", 2)
	v.SetDefault("VAD_FRAME_MS", 30)
	v.SetDefault("SILENCE_TIMEOUT_SEC", 2.0)
	v.SetDefault("MIN_SPEECH_SEC", 0.5)
	v.SetDefault("PREROLL_IGNORE_SEC", 0.5)
	v.SetDefault("MIN_START_RMS", 100.0)

	v.SetDefault("MIN_UTTERANCE_MS", 500)
	v.SetDefault("MIN_UTTERANCE_RMS", 60.0)
	v.SetDefault("UTTERANCE_QUEUE_DEPTH", 4)

	v.SetDefault("CALL_MAX_SEC", 900)
	v.SetDefault("CALLER_SILENCE_SEC", 30)
	v.SetDefault("OPERATOR_TIMEOUT_SEC", 600)

	v.SetDefault("PROVIDER_QPS", 8.0)
}

// GetApplicationConfig unmarshals and validates the application config.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
