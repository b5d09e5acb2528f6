// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	internal_codec "github.com/rapidaai/frontdesk/api/voice-api/internal/codec"
	internal_dialog "github.com/rapidaai/frontdesk/api/voice-api/internal/dialog"
	internal_events "github.com/rapidaai/frontdesk/api/voice-api/events"
	internal_synthesize "github.com/rapidaai/frontdesk/api/voice-api/synthesize"
	internal_transcribe "github.com/rapidaai/frontdesk/api/voice-api/transcribe"
	internal_transformer "github.com/rapidaai/frontdesk/api/voice-api/internal/transformer"
	internal_type "github.com/rapidaai/frontdesk/api/voice-api/internal/type"
	internal_utterance "github.com/rapidaai/frontdesk/api/voice-api/utterance"
	internal_vad "github.com/rapidaai/frontdesk/api/voice-api/vad"
	"github.com/rapidaai/frontdesk/pkg/commons"
)

// drainWindow bounds the final-utterance transcription during shutdown.
const drainWindow = 2 * time.Second

// writeTimeout bounds one outbound media write so a stalled peer cannot
// wedge the scheduler.
const writeTimeout = 5 * time.Second

// Config tunes one call session. FrameMs is shared by the codec and the VAD
// so boundaries and frames always line up.
type Config struct {
	FrameMs         int
	VAD             internal_vad.Config
	Utterance       internal_utterance.Config
	QueueDepth      int
	Transcribe      internal_transcribe.Config
	Synthesize      internal_synthesize.Config
	CallMax         time.Duration
	CallerSilence   time.Duration
	SilenceStrikes  int
	OperatorTimeout time.Duration
}

// DefaultConfig returns the documented session defaults.
func DefaultConfig() Config {
	return Config{
		FrameMs:         30,
		VAD:             internal_vad.DefaultConfig(),
		Utterance:       internal_utterance.DefaultConfig(),
		QueueDepth:      4,
		Transcribe:      internal_transcribe.DefaultConfig(),
		CallMax:         15 * time.Minute,
		CallerSilence:   30 * time.Second,
		SilenceStrikes:  3,
		OperatorTimeout: 10 * time.Minute,
	}
}

// Providers bundles the external speech services for one session.
type Providers struct {
	STT internal_transformer.SpeechToTextTransformer
	TTS internal_transformer.TextToSpeechTransformer
	NLU internal_transformer.IntentTransformer
}

// Session owns one call end to end: the media WebSocket, the audio pipeline,
// the dialog machine, and the output scheduler. All pipeline stages except
// the dialog machine are single-writer and owned by one loop.
type Session struct {
	logger    commons.Logger
	cfg       Config
	callID    string
	publisher *internal_events.Publisher

	machine   *internal_dialog.Machine
	scheduler *internal_synthesize.Scheduler
	decoder   *internal_codec.Decoder
	segmenter *internal_vad.Segmenter
	buffer    *internal_utterance.Buffer
	queue     *internal_utterance.Queue
	gateway   *internal_transcribe.Gateway

	conn    *websocket.Conn
	writeMu sync.Mutex

	shutdownOnce sync.Once
	done         chan struct{}
	reason       string

	decidedOnce sync.Once
	decided     chan struct{}

	activityMu   sync.Mutex
	lastActivity time.Time
}

// NewSession wires the per-call pipeline. The session is inert until Run.
func NewSession(
	logger commons.Logger,
	callID string,
	bus *internal_events.Bus,
	providers Providers,
	onBookingApproved func(ctx context.Context, callID string, draft *internal_dialog.BookingDraft) error,
	cfg Config,
) (*Session, error) {
	cfg.VAD.FrameMs = cfg.FrameMs

	decoder, err := internal_codec.NewDecoder(logger, cfg.FrameMs)
	if err != nil {
		return nil, err
	}
	segmenter, err := internal_vad.NewSegmenter(logger, cfg.VAD)
	if err != nil {
		return nil, err
	}

	s := &Session{
		logger:    logger,
		cfg:       cfg,
		callID:    callID,
		publisher: bus.Publisher(callID),
		decoder:   decoder,
		segmenter: segmenter,
		buffer:    internal_utterance.NewBuffer(logger, cfg.Utterance),
		queue:     internal_utterance.NewQueue(cfg.QueueDepth),
		done:      make(chan struct{}),
		decided:   make(chan struct{}),
	}

	s.gateway = internal_transcribe.NewGateway(logger, providers.STT, cfg.Transcribe)
	s.gateway.OnDegraded = func(streak int) {
		s.logger.Warnw("session: stt degraded", "call_id", s.callID, "streak", streak)
		s.publisher.Publish(internal_events.TypeDegraded, map[string]interface{}{
			"component": "stt",
			"streak":    streak,
		})
	}

	s.scheduler = internal_synthesize.NewScheduler(logger, providers.TTS, s.publisher, s.writeWire, cfg.Synthesize)
	s.machine = internal_dialog.NewMachine(logger, providers.NLU, s.publisher, s.scheduler.Say)
	if onBookingApproved != nil {
		s.machine.OnBookingApproved = func(ctx context.Context, draft *internal_dialog.BookingDraft) error {
			return onBookingApproved(ctx, callID, draft)
		}
	}
	return s, nil
}

// CallID returns the session's call identifier.
func (s *Session) CallID() string {
	return s.callID
}

// Machine exposes the dialog machine, for the manager's operator-timeout
// handling.
func (s *Session) Machine() *internal_dialog.Machine {
	return s.machine
}

// Decided receives when an operator verdict has been applied.
func (s *Session) Decided() <-chan struct{} {
	return s.decided
}

// Run drives the call until hangup, timeout, or transport failure. It owns
// the WebSocket for its whole lifetime and always finishes with the final
// flush and the call_ended event.
func (s *Session) Run(ctx context.Context, conn *websocket.Conn) error {
	s.conn = conn
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A shutdown request may predate the media socket: the watcher turns it
	// into a context cancel and a socket close whenever it lands.
	go func() {
		select {
		case <-s.done:
			cancel()
			conn.Close()
		case <-ctx.Done():
		}
	}()

	s.markActivity()
	s.scheduler.OnTerminalDone = func() {
		s.Shutdown("completed")
	}

	s.publisher.Publish(internal_events.TypeCallStarted, map[string]interface{}{
		"call_id": s.callID,
	})
	s.machine.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.inboundLoop(gctx)
		// Inbound is the transport's heartbeat: once it stops, for any
		// reason, the whole session winds down.
		s.Shutdown("transport_closed")
		return err
	})
	g.Go(func() error { return s.transcribeLoop(gctx) })
	g.Go(func() error { return s.timerLoop(gctx) })
	g.Go(func() error {
		err := s.scheduler.Run(gctx)
		if err == nil {
			// Terminal turn completed; OnTerminalDone already requested
			// shutdown.
			return nil
		}
		return err
	})

	err := g.Wait()
	s.Shutdown("transport_closed")
	s.finalize()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown requests session termination. Idempotent; the first caller's
// reason wins. Valid before the media socket attaches: Run observes the
// request and terminates as soon as it starts. The final flush happens in
// Run once the loops have stopped.
func (s *Session) Shutdown(reason string) {
	s.shutdownOnce.Do(func() {
		s.reason = reason
		s.logger.Infow("session: shutting down", "call_id", s.callID, "reason", reason)
		close(s.done)
	})
}

// HandleOperatorCommand implements internal_events.CommandHandler. Verdicts
// remain valid after the caller hangs up; they produce events, never audio.
func (s *Session) HandleOperatorCommand(ctx context.Context, cmd internal_events.Command) error {
	if cmd.BookingID != s.machine.Draft().ID.String() {
		return internal_events.ErrNotFound
	}

	var verdict internal_type.Verdict
	switch cmd.Type {
	case "approve":
		verdict = internal_type.VerdictApproved
	case "reject":
		verdict = internal_type.VerdictRejected
	default:
		return errors.New("unknown operator command " + cmd.Type)
	}

	if err := s.machine.OnOperatorVerdict(ctx, verdict, cmd.Note); err != nil {
		return err
	}
	s.decidedOnce.Do(func() { close(s.decided) })
	return nil
}

// ====================================================================
// loops
// ====================================================================

// inboundLoop reads media envelopes and feeds the audio pipeline. It exits
// on stop, read error, or the closed socket during shutdown.
func (s *Session) inboundLoop(ctx context.Context) error {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		env, err := internal_codec.ParseEnvelope(raw)
		if err != nil {
			s.decoder.NoteMalformed()
			s.logger.Debugf("session: dropping malformed frame: %v", err)
			continue
		}

		switch env.Event {
		case internal_codec.EventStart:
			if env.Start != nil {
				s.scheduler.SetStreamSid(env.Start.StreamSid)
			}
		case internal_codec.EventMedia:
			frames, err := s.decoder.Decode(env.Media.Payload, time.Now())
			if err != nil {
				s.logger.Debugf("session: dropping undecodable media: %v", err)
				continue
			}
			for _, frame := range frames {
				s.processFrame(frame)
			}
		case internal_codec.EventStop:
			return nil
		}
	}
}

// processFrame runs one frame through the VAD and utterance stages.
func (s *Session) processFrame(frame internal_type.Frame) {
	for _, ev := range s.segmenter.Process(frame) {
		switch ev.Kind {
		case internal_vad.EventSpeechStart:
			s.markActivity()
			s.scheduler.BargeIn()
			s.buffer.Begin(ev.At)
		case internal_vad.EventSpeechEnd:
			s.markActivity()
			s.enqueue(s.buffer.End(ev.At))
		case internal_vad.EventSpeechAbort:
			s.buffer.Abort()
		}
	}
	if s.buffer.Open() {
		s.buffer.Append(frame)
	}
}

// enqueue hands a gated utterance to the transcription queue, surfacing
// drop-oldest evictions on the event stream.
func (s *Session) enqueue(u *internal_type.Utterance) {
	if u == nil {
		return
	}
	if evicted := s.queue.Push(u); evicted != nil {
		s.logger.Warnw("session: transcription backlog, dropped oldest utterance",
			"call_id", s.callID, "utterance_id", evicted.ID)
		s.publisher.Publish(internal_events.TypeWarning, map[string]interface{}{
			"reason":       "utterance_dropped",
			"utterance_id": evicted.ID,
		})
	}
}

// transcribeLoop drains the utterance queue through the gateway into the
// dialog machine.
func (s *Session) transcribeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queue.Wait():
		}
		for u := s.queue.Pop(); u != nil; u = s.queue.Pop() {
			s.transcribeOne(ctx, u)
		}
	}
}

func (s *Session) transcribeOne(ctx context.Context, u *internal_type.Utterance) {
	t, err := s.gateway.Transcribe(ctx, u)
	switch {
	case err == nil:
		s.machine.OnTranscript(ctx, t)
	case errors.Is(err, internal_transcribe.ErrRejected):
		s.logger.Debugf("session: unintelligible utterance %d: %v", u.ID, err)
		s.machine.OnUnintelligible(ctx)
	case errors.Is(err, internal_transformer.ErrPermanent):
		// Auth or hard 4xx will not recover within this call. Apologize
		// and end; the process keeps serving other calls.
		s.logger.Errorw("session: stt permanently failing, ending call",
			"call_id", s.callID, "utterance_id", u.ID, "error", err)
		s.machine.OnProviderOutage(ctx)
	default:
		// Transient failure: drop the utterance, the streak counter and
		// degraded event are the gateway's business.
		s.logger.Warnw("session: transcription failed", "call_id", s.callID, "utterance_id", u.ID, "error", err)
	}
}

// timerLoop enforces the call maximum and the caller-silence policy: each
// silent period nudges the caller, three consecutive ones end the call.
func (s *Session) timerLoop(ctx context.Context) error {
	callMax := time.NewTimer(s.cfg.CallMax)
	defer callMax.Stop()
	silence := time.NewTicker(s.cfg.CallerSilence)
	defer silence.Stop()

	strikes := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-callMax.C:
			s.Shutdown("call_max_duration")
			return nil
		case <-silence.C:
			if time.Since(s.activity()) < s.cfg.CallerSilence {
				strikes = 0
				continue
			}
			strikes++
			if strikes >= s.cfg.SilenceStrikes {
				s.logger.Infow("session: caller inactive, closing call", "call_id", s.callID)
				if !s.machine.OnInactivityTimeout(ctx) {
					s.Shutdown("caller_inactive")
				}
				// The closing turn's completion hangs up; the call
				// maximum still bounds the worst case.
				return nil
			}
			s.logger.Infow("session: caller silent, nudging", "call_id", s.callID, "strike", strikes)
			s.machine.OnInactivity(ctx)
		}
	}
}

// ====================================================================
// shutdown path
// ====================================================================

// finalize force-closes any open speech run, gives its utterance one bounded
// transcription attempt, and emits call_ended. Runs after all loops stop.
func (s *Session) finalize() {
	for _, ev := range s.segmenter.Flush() {
		if ev.Kind != internal_vad.EventSpeechEnd {
			s.buffer.Abort()
			continue
		}
		if u := s.buffer.End(ev.At); u != nil {
			ctx, cancel := context.WithTimeout(context.Background(), drainWindow)
			s.transcribeOne(ctx, u)
			cancel()
		}
	}

	s.publisher.Publish(internal_events.TypeCallEnded, map[string]interface{}{
		"reason":             s.reason,
		"dropped_utterances": s.queue.Dropped(),
		"malformed_frames":   s.decoder.MalformedCount(),
	})
}

// writeWire serializes writes to the media WebSocket.
func (s *Session) writeWire(envelope []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return errors.New("session: media socket not attached")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, envelope)
}

func (s *Session) markActivity() {
	s.activityMu.Lock()
	s.lastActivity = time.Now()
	s.activityMu.Unlock()
}

func (s *Session) activity() time.Time {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return s.lastActivity
}
