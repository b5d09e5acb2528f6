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
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"golang.org/x/time/rate"
)

type httpIntentExtractor struct {
	providerOptions
	logger commons.Logger
}

type intentRequest struct {
	History   []intentTurn      `json:"history"`
	Utterance string            `json:"utterance"`
	Slots     map[string]string `json:"slots"`
}

type intentTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type intentResponse struct {
	Slots map[string]string `json:"slots"`
}

// NewHttpIntentExtractor builds the NLU client.
func NewHttpIntentExtractor(logger commons.Logger, endpoint, apiKey string, limiter *rate.Limiter) internal_transformer.IntentTransformer {
	return &httpIntentExtractor{
		providerOptions: newProviderOptions(endpoint, apiKey, limiter),
		logger:          logger,
	}
}

// Name implements internal_transformer.IntentTransformer.
func (*httpIntentExtractor) Name() string {
	return "http-intent-extractor"
}

func (nlu *httpIntentExtractor) Extract(ctx context.Context, history []internal_type.Turn, utterance string, slots map[string]string) (*internal_transformer.IntentExtraction, error) {
	if err := nlu.wait(ctx); err != nil {
		return nil, err
	}

	req := intentRequest{
		Utterance: utterance,
		Slots:     slots,
	}
	for _, t := range history {
		req.History = append(req.History, intentTurn{Speaker: string(t.Speaker), Text: t.Text})
	}

	resp, err := nlu.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+nlu.apiKey).
		SetBody(req).
		Post(nlu.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: nlu request: %v", ErrTransient, err)
	}
	if err := classify(resp.StatusCode()); err != nil {
		return nil, fmt.Errorf("nlu: %w", err)
	}

	var out intentResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: nlu decode: %v", ErrTransient, err)
	}
	if out.Slots == nil {
		out.Slots = map[string]string{}
	}
	return &internal_transformer.IntentExtraction{Slots: out.Slots}, nil
}
