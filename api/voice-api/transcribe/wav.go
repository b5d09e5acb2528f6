// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcribe

import (
	"bytes"
	"encoding/binary"

	internal_audio "github.com/rapidaai/frontdesk/api/voice-api/internal/audio"
)

const (
	audioBytesPerSample = 2  // LINEAR16 → 2 bytes per sample
	audioBitsPerSample  = 16 // LINEAR16 → 16 bits per sample
	audioPCMFormat      = 1  // WAV PCM format tag
)

// WrapWAV wraps raw internal PCM (linear16 16 kHz mono) in a WAV container
// for the STT provider.
func WrapWAV(pcmData []byte) []byte {
	var buf bytes.Buffer
	cfg := internal_audio.INTERNAL_AUDIO_CONFIG
	bps := cfg.SampleRate * cfg.Channels * audioBytesPerSample

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(audioPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(cfg.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(cfg.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(audioBytesPerSample*cfg.Channels))
	binary.Write(&buf, binary.LittleEndian, uint16(audioBitsPerSample))

	// data chunk
	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes()
}
