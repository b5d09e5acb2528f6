// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transformer_http

import (
	"context"
	"encoding/json"
	"fmt"

	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"golang.org/x/time/rate"
)

type httpSpeechToText struct {
	providerOptions
	logger commons.Logger
	model  string
}

// speechToTextOutput is the provider response shape: text plus an average
// log-probability confidence (whisper-style verbose JSON).
type speechToTextOutput struct {
	Text       string  `json:"text"`
	AvgLogProb float64 `json:"avg_logprob"`
	Language   string  `json:"language"`
}

// NewHttpSpeechToText builds the STT client. The limiter is the process-wide
// provider token bucket shared with TTS and NLU.
func NewHttpSpeechToText(logger commons.Logger, endpoint, apiKey, model string, limiter *rate.Limiter) internal_transformer.SpeechToTextTransformer {
	return &httpSpeechToText{
		providerOptions: newProviderOptions(endpoint, apiKey, limiter),
		logger:          logger,
		model:           model,
	}
}

// Name implements internal_transformer.SpeechToTextTransformer.
func (*httpSpeechToText) Name() string {
	return "http-speech-to-text"
}

func (stt *httpSpeechToText) Transform(ctx context.Context, wav []byte) (*internal_transformer.Transcription, error) {
	if err := stt.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := stt.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+stt.apiKey).
		SetFileReader("file", "utterance.wav", bytesReader(wav)).
		SetFormData(map[string]string{"model": stt.model}).
		Post(stt.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: stt request: %v", ErrTransient, err)
	}
	if err := classify(resp.StatusCode()); err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}

	var out speechToTextOutput
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: stt decode: %v", ErrTransient, err)
	}
	return &internal_transformer.Transcription{
		Text:       out.Text,
		AvgLogProb: out.AvgLogProb,
		Language:   out.Language,
	}, nil
}
