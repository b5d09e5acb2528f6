// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_codec

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrFrameMalformed marks media WebSocket messages that cannot be parsed.
// Malformed frames are dropped and counted, never fatal to the session.
var ErrFrameMalformed = errors.New("malformed media frame")

// Envelope event names on the Twilio media stream.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
)

// Envelope is one JSON message on the bidirectional media WebSocket.
type Envelope struct {
	Event     string           `json:"event"`
	StreamSid string           `json:"streamSid,omitempty"`
	Start     *StartPayload    `json:"start,omitempty"`
	Media     *MediaPayload    `json:"media,omitempty"`
	Mark      *MarkPayload     `json:"mark,omitempty"`
	Stop      *json.RawMessage `json:"stop,omitempty"`
}

// StartPayload announces the stream and carries provider identifiers.
type StartPayload struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

// MediaPayload carries one base64-encoded µ-law audio chunk.
type MediaPayload struct {
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp,omitempty"`
}

// MarkPayload is the provider's playback synchronization echo.
type MarkPayload struct {
	Name string `json:"name"`
}

// ParseEnvelope decodes one inbound media WebSocket message. A message that
// is not JSON, has no event, or is a media event without a payload is
// reported as ErrFrameMalformed.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameMalformed, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrFrameMalformed)
	}
	if env.Event == EventMedia && (env.Media == nil || env.Media.Payload == "") {
		return nil, fmt.Errorf("%w: media event without payload", ErrFrameMalformed)
	}
	return &env, nil
}

// NewMediaEnvelope wraps an outbound base64 payload in the provider envelope.
func NewMediaEnvelope(streamSid, payload string) ([]byte, error) {
	return json.Marshal(&Envelope{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: payload},
	})
}

// NewMarkEnvelope builds a playback synchronization mark.
func NewMarkEnvelope(streamSid, name string) ([]byte, error) {
	return json.Marshal(&Envelope{
		Event:     EventMark,
		StreamSid: streamSid,
		Mark:      &MarkPayload{Name: name},
	})
}
