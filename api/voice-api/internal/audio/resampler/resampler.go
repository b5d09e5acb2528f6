// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio_resampler

import (
	"fmt"

	internal_audio "github.com/rapidaai/frontdesk/api/voice-api/internal/audio"
	"github.com/rapidaai/frontdesk/pkg/commons"
	"github.com/rapidaai/frontdesk/pkg/utils"
)

// AudioResampler converts linear PCM16 between sample rates. Only the 2:1
// telephony pair (8 kHz ↔ 16 kHz mono) is supported; the codec is the only
// caller and the only place in the pipeline that resamples.
type AudioResampler interface {
	// Resample converts PCM16 bytes from src to dst format. Passing equal
	// rates returns the input unchanged.
	Resample(data []byte, src, dst internal_audio.Config) ([]byte, error)

	// Reset clears the filter memory. Call between unrelated streams.
	Reset()
}

// halfband holds the small filter memory carried across calls so frame
// boundaries do not click.
type halfband struct {
	logger commons.Logger

	// upTail: last 3 input samples of the previous 8 kHz block.
	upTail [3]int16
	upSeen int

	// downTail: last 2 input samples of the previous 16 kHz block.
	downTail [2]int16
	downSeen int
}

// NewResampler returns the process-standard telephony resampler.
func NewResampler(logger commons.Logger) AudioResampler {
	return &halfband{logger: logger}
}

func (r *halfband) Resample(data []byte, src, dst internal_audio.Config) ([]byte, error) {
	if src.Format != internal_audio.FormatLinear16 || dst.Format != internal_audio.FormatLinear16 {
		return nil, fmt.Errorf("resampler: only linear16 supported, got %s -> %s", src.Format, dst.Format)
	}
	if src.Channels != 1 || dst.Channels != 1 {
		return nil, fmt.Errorf("resampler: only mono supported")
	}
	switch {
	case src.SampleRate == dst.SampleRate:
		return data, nil
	case src.SampleRate == 8000 && dst.SampleRate == 16000:
		return utils.SamplesToPCM16(r.upsample(utils.PCM16ToSamples(data))), nil
	case src.SampleRate == 16000 && dst.SampleRate == 8000:
		return utils.SamplesToPCM16(r.downsample(utils.PCM16ToSamples(data))), nil
	default:
		return nil, fmt.Errorf("resampler: unsupported rate pair %d -> %d", src.SampleRate, dst.SampleRate)
	}
}

func (r *halfband) Reset() {
	r.upTail = [3]int16{}
	r.upSeen = 0
	r.downTail = [2]int16{}
	r.downSeen = 0
}

// upsample doubles the rate with a 4-point half-band interpolator
// (9/16, -1/16). Even output samples pass the input through; odd samples are
// interpolated from the two neighbours on each side.
func (r *halfband) upsample(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}

	// Prepend retained tail so interpolation sees across block boundaries.
	ext := make([]int16, 0, 3+len(in))
	if r.upSeen >= 3 {
		ext = append(ext, r.upTail[0], r.upTail[1], r.upTail[2])
	} else {
		// Stream start: replicate the first sample as history.
		ext = append(ext, in[0], in[0], in[0])
	}
	ext = append(ext, in...)

	out := make([]int16, 0, len(in)*2)
	// Output is aligned to ext[i] for i in [2, len(ext)-2): one sample of
	// latency against the raw input, absorbed by the retained tail.
	for i := 2; i < len(ext)-1; i++ {
		out = append(out, ext[i])
		xm1, x0 := int32(ext[i-1]), int32(ext[i])
		var x1, x2 int32
		x1 = int32(ext[i+1])
		if i+2 < len(ext) {
			x2 = int32(ext[i+2])
		} else {
			x2 = x1
		}
		v := (9*(x0+x1) - (xm1 + x2)) / 16
		out = append(out, clip16(v))
	}

	// Retain the last 3 input samples.
	n := len(ext)
	r.upTail = [3]int16{ext[n-3], ext[n-2], ext[n-1]}
	r.upSeen += len(in)
	return out
}

// downsample halves the rate with a 3-tap low-pass (1/4, 1/2, 1/4) before
// decimation.
func (r *halfband) downsample(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}

	ext := make([]int16, 0, 2+len(in))
	if r.downSeen >= 2 {
		ext = append(ext, r.downTail[0], r.downTail[1])
	} else {
		ext = append(ext, in[0], in[0])
	}
	ext = append(ext, in...)

	out := make([]int16, 0, len(in)/2+1)
	for i := 2; i < len(ext); i += 2 {
		prev, cur := int32(ext[i-1]), int32(ext[i])
		next := cur
		if i+1 < len(ext) {
			next = int32(ext[i+1])
		}
		out = append(out, clip16((prev+2*cur+next)/4))
	}

	n := len(ext)
	r.downTail = [2]int16{ext[n-2], ext[n-1]}
	r.downSeen += len(in)
	return out
}

func clip16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
