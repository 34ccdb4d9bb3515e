package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// waitingForTranscriptTimeout bounds how long the Controller waits in
// StateWaitingForTranscript for a final transcript after vad_end
// before giving up and returning to Listening with whatever text (if
// any) never arrived. Per §4.4.3.
const waitingForTranscriptTimeout = 2 * time.Second

// vadTelemetryInterval throttles how often WriteAudio pushes a
// vad_update to egress. Per §4.1, ingress must not emit one per frame
// (~20-40ms); 100ms keeps the meter responsive without flooding the
// transport.
const vadTelemetryInterval = 100 * time.Millisecond

type controllerEventKind int

const (
	evVADStart controllerEventKind = iota
	evVADEnd
	evTranscript
	evTTSFirstChunk
	evGenerationComplete
	evGenerationError
	evInterrupt
	evWaitTimeout
	evStop
)

type controllerEvent struct {
	kind       controllerEventKind
	transcript Transcript
	err        error
}

// Controller is the Turn Controller: a single-threaded event loop
// that owns ControllerState/TurnState transitions, turn dispatch, and
// barge-in cancellation. Every other component only talks to it
// through postEvent, so all state mutation happens on one goroutine —
// the same design the teacher's ManagedStream event channel uses.
type Controller struct {
	session *Session
	egress  Egress
	logger  Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup

	events chan controllerEvent

	ingress    *Ingress
	generation *GenerationPipeline
	telemetry  *Telemetry

	// fields below are only ever touched from the run() goroutine.
	state        ControllerState
	turn         *TurnState
	turnBuffer   []string
	pendingAudio bool
	waitTimer    *time.Timer

	genCancel context.CancelFunc
	ttsCancel context.CancelFunc

	// lastVADTelemetry throttles WriteAudio's vad_update emission; it
	// may be read/written from whatever goroutine feeds microphone
	// frames, so it's a plain atomic rather than a run()-owned field.
	lastVADTelemetry atomic.Int64
}

// NewController builds a Controller for session, wired to egress and
// optional telemetry (nil is fine — Telemetry methods are nil-safe).
func NewController(session *Session, egress Egress, telemetry *Telemetry) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	logger := session.Logger
	if logger == nil {
		logger = NoOpLogger{}
	}

	var echo *EchoSuppressor
	if session.SessionConfig.SampleRate > 0 {
		echo = NewEchoSuppressor(session.SessionConfig.SampleRate, 2.0)
	}

	c := &Controller{
		session:    session,
		egress:     egress,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan controllerEvent, 256),
		ingress:    NewIngress(session.VAD, echo),
		generation: NewGenerationPipeline(session),
		telemetry:  telemetry,
		state:      StateListening,
		turn:       NewTurnState(),
	}

	c.wg.Add(2)
	go c.run()
	go c.runSTT()

	return c
}

func (c *Controller) runSTT() {
	defer c.wg.Done()
	if c.session.STT == nil {
		return
	}
	streamer := NewSTTStreamer(c.session.STT, c.session.Config.Language,
		func(t Transcript) { c.postEvent(controllerEvent{kind: evTranscript, transcript: t}) },
		func(err error) { c.postEvent(controllerEvent{kind: evGenerationError, err: err}) },
	)
	streamer.Run(c.ctx, c.ingress.Queue())
}

// WriteAudio feeds one frame of microphone audio into the session.
// Safe to call concurrently with everything else; it never blocks.
func (c *Controller) WriteAudio(frame []byte) error {
	if c.ctx.Err() != nil {
		return ErrSessionClosed
	}
	events, overflowed, err := c.ingress.PushFrame(frame)
	if err != nil {
		return err
	}
	if overflowed && c.telemetry != nil {
		c.telemetry.RecordDroppedFrame(c.ctx)
	}
	for _, ev := range events {
		switch ev.Type {
		case VADSpeechStart:
			c.postEvent(controllerEvent{kind: evVADStart})
		case VADSpeechEnd:
			c.postEvent(controllerEvent{kind: evVADEnd})
		}
	}
	if now := time.Now().UnixNano(); now-c.lastVADTelemetry.Load() >= int64(vadTelemetryInterval) {
		c.lastVADTelemetry.Store(now)
		sendCtx, cancel := context.WithTimeout(c.ctx, 50*time.Millisecond)
		_ = c.egress.Send(sendCtx, EgressMessage{Type: MsgVADUpdate, VADProb: c.ingress.vad.CurrentProbability()})
		cancel()
	}
	return nil
}

// NotifyAudioPlayed records a chunk of audio that was just sent to an
// output device, feeding the echo suppressor.
func (c *Controller) NotifyAudioPlayed(chunk []byte) {
	c.ingress.RecordPlayback(chunk)
}

// Interrupt requests an explicit barge-in (e.g. a UI "stop talking"
// button) independent of VAD. Safe to call at any time.
func (c *Controller) Interrupt() {
	c.postEvent(controllerEvent{kind: evInterrupt})
}

// Close stops the Controller's event loop and any in-flight
// generation/TTS tasks. Idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.postEvent(controllerEvent{kind: evStop})
		c.cancel()
	})
	c.wg.Wait()
}

func (c *Controller) postEvent(ev controllerEvent) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
			if ev.kind == evStop {
				return
			}
		}
	}
}

func (c *Controller) handle(ev controllerEvent) {
	switch ev.kind {
	case evVADStart:
		c.onVADStart()
	case evVADEnd:
		c.onVADEnd()
	case evTranscript:
		c.onTranscript(ev.transcript)
	case evTTSFirstChunk:
		c.onTTSFirstChunk()
	case evGenerationComplete:
		c.onGenerationComplete()
	case evGenerationError:
		c.onGenerationError(ev.err)
	case evInterrupt:
		c.onInterrupt()
	case evWaitTimeout:
		c.onWaitTimeout()
	case evStop:
		c.onInterrupt()
	}
}

// onVADStart implements §4.4.1: any speech_start resets Turn State and
// unconditionally posts an interrupt if there's any pending
// generation/TTS/egress activity, even if the Controller's own state
// already reads Listening (the TTS stream may still be draining).
func (c *Controller) onVADStart() {
	hadPending := c.pendingAudio
	c.resetTurn()
	c.sendAsync(EgressMessage{Type: MsgSpeechStart})

	if hadPending {
		c.onInterrupt()
		return
	}
	c.state = StateListening
}

func (c *Controller) resetTurn() {
	c.stopWaitTimer()
	c.turn = NewTurnState()
	c.turn.VADSpeechDetected = true
	c.turnBuffer = nil
}

func (c *Controller) onVADEnd() {
	c.turn.VADEndOfSpeechDetected = true
	c.turn.VADEndOfSpeechDetectedTime = time.Now()
	c.sendAsync(EgressMessage{Type: MsgSpeechEnd})
	c.emitTelemetry()

	switch c.state {
	case StateListening:
		if len(c.turnBuffer) > 0 {
			c.dispatchTurn()
		} else {
			c.state = StateWaitingForTranscript
			c.armWaitTimer()
		}
	case StateWaitingForTranscript:
		// duplicate vad_end while already waiting; ignore.
	default:
		// Thinking/Speaking already means a prior barge-in reset the
		// state machine; a stray vad_end here is a late VAD callback
		// and carries no action.
	}
}

func (c *Controller) onTranscript(t Transcript) {
	c.sendAsync(EgressMessage{Type: MsgTranscriptUpdate, Text: t.Text, IsFinal: t.IsFinal})
	if !t.IsFinal {
		return
	}
	c.turn.STTStreamingStarted = true

	switch c.state {
	case StateListening:
		c.turnBuffer = append(c.turnBuffer, t.Text)
	case StateWaitingForTranscript:
		c.turnBuffer = append(c.turnBuffer, t.Text)
		c.stopWaitTimer()
		c.dispatchTurn()
	default:
		// Final transcript trailing in after dispatch (e.g. while
		// already Thinking/Speaking) doesn't retroactively modify the
		// turn already dispatched; it is held in turnBuffer, which the
		// next speech_start clears via resetTurn.
		c.turnBuffer = append(c.turnBuffer, t.Text)
	}
}

func (c *Controller) onWaitTimeout() {
	if c.state != StateWaitingForTranscript {
		return
	}
	c.state = StateListening
}

func (c *Controller) dispatchTurn() {
	text := strings.Join(c.turnBuffer, " ")
	c.turnBuffer = nil
	c.turn.STTStreamingEnded = true
	c.state = StateThinking
	c.sendAsync(EgressMessage{Type: MsgBotRespondingStart})
	c.turn.LLMStreamingStarted = true
	c.emitTelemetry()

	c.dispatchGeneration(text)
}

func (c *Controller) dispatchGeneration(userText string) {
	genCtx, genCancel := context.WithCancel(c.ctx)
	ttsCtx, ttsCancel := context.WithCancel(genCtx)
	c.genCancel = genCancel
	c.ttsCancel = ttsCancel
	c.pendingAudio = true

	textUnits := make(chan string, 32)

	go func() {
		err := c.generation.Run(genCtx, userText, textUnits, func(text string, isComplete bool) {
			c.sendAsync(EgressMessage{Type: MsgAssistantResponse, Text: text, IsComplete: isComplete})
		})
		if err != nil && genCtx.Err() == nil {
			c.postEvent(controllerEvent{kind: evGenerationError, err: err})
		}
	}()

	go func() {
		streamer := NewTTSStreamer(
			c.session.TTS, c.session.Config.Voice, c.session.Config.Language,
			func() { c.postEvent(controllerEvent{kind: evTTSFirstChunk}) },
			func(chunk []byte) {
				c.ingress.RecordPlayback(chunk)
				c.sendAsync(EgressMessage{Type: MsgAudioChunk, Audio: chunk})
			},
			func() {
				c.sendAsync(EgressMessage{Type: MsgAudioStreamEnd})
				if ttsCtx.Err() == nil {
					c.postEvent(controllerEvent{kind: evGenerationComplete})
				}
			},
			func(err error) { c.postEvent(controllerEvent{kind: evGenerationError, err: err}) },
		)
		streamer.Run(ttsCtx, textUnits)
	}()
}

func (c *Controller) onTTSFirstChunk() {
	if c.state == StateThinking {
		c.state = StateSpeaking
		c.turn.EgressStarted = true
		c.turn.EgressStartedTime = time.Now()
		c.turn.TTSStreamingStarted = true
		c.emitTelemetry()
	}
}

func (c *Controller) onGenerationComplete() {
	c.genCancel = nil
	c.ttsCancel = nil
	c.pendingAudio = false

	c.turn.LLMStreamingEnded = true
	c.turn.TTSStreamingEnded = true
	c.turn.EgressEnded = true
	c.state = StateListening

	c.sendAsync(EgressMessage{Type: MsgBotRespondingEnd})
	c.emitTelemetry()
}

func (c *Controller) onGenerationError(err error) {
	c.genCancel = nil
	c.ttsCancel = nil
	c.pendingAudio = false
	c.state = StateListening

	c.sendAsync(EgressMessage{Type: MsgError, Err: err.Error()})
}

// onInterrupt implements the "any state | interrupt" row of §4.4:
// cancel Generation and TTS tasks, drain queued egress audio, and
// emit interrupt then bot_response_interrupted. It does not wait for
// the cancelled tasks to finish unwinding before returning the
// Controller to Listening — it relies on the drain plus the tasks'
// own ctx checks to keep stale output from reaching egress.
func (c *Controller) onInterrupt() {
	genCancel := c.genCancel
	ttsCancel := c.ttsCancel
	c.genCancel = nil
	c.ttsCancel = nil
	c.pendingAudio = false
	c.stopWaitTimer()
	c.state = StateListening

	if genCancel != nil {
		genCancel()
	}
	if ttsCancel != nil {
		ttsCancel()
	}
	if c.session.TTS != nil {
		_ = c.session.TTS.Abort()
	}
	c.ingress.ClearEcho()

	if drainer, ok := c.egress.(interface{ DrainAudio() int }); ok {
		drainer.DrainAudio()
	}

	c.sendAsync(EgressMessage{Type: MsgInterrupt})
	c.sendAsync(EgressMessage{Type: MsgBotResponseInterrupted})
	if c.telemetry != nil {
		c.telemetry.RecordInterrupt(c.ctx)
	}
}

func (c *Controller) armWaitTimer() {
	c.stopWaitTimer()
	c.waitTimer = time.AfterFunc(waitingForTranscriptTimeout, func() {
		c.postEvent(controllerEvent{kind: evWaitTimeout})
	})
}

func (c *Controller) stopWaitTimer() {
	if c.waitTimer != nil {
		c.waitTimer.Stop()
		c.waitTimer = nil
	}
}

func (c *Controller) emitTelemetry() {
	snap := c.turn.Snapshot()
	c.sendAsync(EgressMessage{Type: MsgTelemetryUpdate, Telemetry: snap})
	if c.telemetry != nil {
		c.telemetry.RecordTurn(c.ctx, c.turn)
	}
}

// sendAsync delivers a lifecycle message to egress without blocking
// the event loop on a slow transport; it's bounded by a short timeout
// against the session context rather than the (possibly already
// cancelled) turn context, so lifecycle messages still get a chance
// to land during/after an interrupt.
func (c *Controller) sendAsync(msg EgressMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()
	_ = c.egress.Send(ctx, msg)
}

// State returns the Controller's current ControllerState. Intended
// for tests/diagnostics; callers should not branch production logic
// on it from outside the event loop.
func (c *Controller) State() ControllerState {
	return c.state
}
