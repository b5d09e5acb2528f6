// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

// Format enumerates the audio encodings that cross the codec boundary.
type Format string

const (
	FormatLinear16 Format = "linear16"
	FormatMuLaw    Format = "mulaw"
)

// Config describes an audio stream: encoding, sample rate and channel count.
type Config struct {
	Format     Format
	SampleRate int
	Channels   int
}

// BytesPerMs returns the byte rate of one millisecond of audio in this
// configuration. µ-law carries one byte per sample, linear16 two.
func (c Config) BytesPerMs() int {
	bytesPerSample := 2
	if c.Format == FormatMuLaw {
		bytesPerSample = 1
	}
	return c.SampleRate / 1000 * c.Channels * bytesPerSample
}

// NewLinear16khzMonoAudioConfig is the internal pipeline format: everything
// between the codec and the TTS scheduler is linear16 16 kHz mono.
func NewLinear16khzMonoAudioConfig() Config {
	return Config{Format: FormatLinear16, SampleRate: 16000, Channels: 1}
}

// NewMulaw8khzMonoAudioConfig is the telephony wire format (Twilio media
// streams): µ-law companded 8 kHz mono.
func NewMulaw8khzMonoAudioConfig() Config {
	return Config{Format: FormatMuLaw, SampleRate: 8000, Channels: 1}
}

// INTERNAL_AUDIO_CONFIG is the process-wide internal pipeline format.
var INTERNAL_AUDIO_CONFIG = NewLinear16khzMonoAudioConfig()

// TELEPHONY_AUDIO_CONFIG is the provider-native wire format.
var TELEPHONY_AUDIO_CONFIG = NewMulaw8khzMonoAudioConfig()
