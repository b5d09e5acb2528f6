// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transformer_http

import (
	"bytes"
	"context"
	"fmt"
	"io"

	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"golang.org/x/time/rate"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

type httpTextToSpeech struct {
	providerOptions
	logger commons.Logger
}

// NewHttpTextToSpeech builds the TTS client. The provider returns raw PCM16
// 16 kHz mono in the response body.
func NewHttpTextToSpeech(logger commons.Logger, endpoint, apiKey string, limiter *rate.Limiter) internal_transformer.TextToSpeechTransformer {
	return &httpTextToSpeech{
		providerOptions: newProviderOptions(endpoint, apiKey, limiter),
		logger:          logger,
	}
}

// Name implements internal_transformer.TextToSpeechTransformer.
func (*httpTextToSpeech) Name() string {
	return "http-text-to-speech"
}

func (tts *httpTextToSpeech) Transform(ctx context.Context, text, voiceID string) ([]byte, error) {
	if err := tts.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := tts.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+tts.apiKey).
		SetHeader("Accept", "audio/l16;rate=16000").
		SetBody(map[string]string{
			"text":     text,
			"voice_id": voiceID,
		}).
		Post(tts.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: tts request: %v", ErrTransient, err)
	}
	if err := classify(resp.StatusCode()); err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	audio := resp.Body()
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: tts returned empty audio", ErrTransient)
	}
	return audio, nil
}
