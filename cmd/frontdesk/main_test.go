// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/frontdesk/config"
)

func TestHoldClipWiredIntoSessionConfig(t *testing.T) {
	require.NotEmpty(t, holdClip)
	// PCM16 mono: whole samples only.
	assert.Zero(t, len(holdClip)%2)

	sc := sessionConfig(&config.AppConfig{})
	assert.Equal(t, holdClip, sc.Synthesize.FallbackClipPCM)
}
