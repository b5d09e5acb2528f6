// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transformer_http

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
)

// Error sentinels shared by all provider clients. Aliased so callers inside
// the package read naturally.
var (
	ErrPermanent = internal_transformer.ErrPermanent
	ErrTransient = internal_transformer.ErrTransient
)

// providerOptions is shared wiring for the HTTP provider clients: one resty
// client and one process-wide token bucket limiting calls across sessions.
type providerOptions struct {
	endpoint string
	apiKey   string
	client   *resty.Client
	limiter  *rate.Limiter
}

func newProviderOptions(endpoint, apiKey string, limiter *rate.Limiter) providerOptions {
	return providerOptions{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   resty.New(),
		limiter:  limiter,
	}
}

// wait blocks on the shared token bucket, honoring the caller's context.
func (o *providerOptions) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", ErrTransient, err)
	}
	return nil
}

// classify maps an HTTP status to the transient/permanent split.
func classify(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d", ErrPermanent, status)
	default:
		return fmt.Errorf("%w: status %d", ErrTransient, status)
	}
}
