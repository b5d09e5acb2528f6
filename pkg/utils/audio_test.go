// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRMS16Silence(t *testing.T) {
	assert.Equal(t, 0.0, RMS16(make([]byte, 320)))
}

func TestRMS16FullScale(t *testing.T) {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 32767
	}
	rms := RMS16(SamplesToPCM16(samples))
	assert.InDelta(t, 32767, rms, 1)
}

func TestRMS16EmptyAndOddInput(t *testing.T) {
	assert.Equal(t, 0.0, RMS16(nil))
	// A trailing odd byte is ignored rather than misread as a sample.
	assert.Equal(t, 0.0, RMS16([]byte{0x00}))
}

func TestSamplesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	out := PCM16ToSamples(SamplesToPCM16(in))
	assert.Equal(t, in, out)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(5, 0, 10))
	assert.Equal(t, 0, Clamp(-3, 0, 10))
	assert.Equal(t, 10, Clamp(42, 0, 10))
}
