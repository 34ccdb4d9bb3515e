package orchestrator

import (
	"testing"
	"time"
)

func newTestController(t *testing.T, llm LLMProvider, tts TTSProvider, onMsg func(EgressMessage)) *Controller {
	t.Helper()
	cfg := DefaultAgentConfig()
	sessCfg := DefaultSessionConfig()
	session := NewSession("sess_test", "agent_test", cfg, sessCfg)
	session.VAD = NewRMSVAD(0.1, 100*time.Millisecond)
	session.LLM = llm
	session.TTS = tts

	egress := newSynchronousEgress(onMsg)
	c := NewController(session, egress, nil)
	t.Cleanup(c.Close)
	return c
}

func waitForState(t *testing.T, c *Controller, want ControllerState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, got %s", want, c.State())
}

func TestControllerHappyPath(t *testing.T) {
	llm := &MockLLMProvider{Response: "the weather is sunny"}
	tts := &MockTTSProvider{Audio: []byte{1, 2, 3}}

	var gotAudio bool
	c := newTestController(t, llm, tts, func(msg EgressMessage) {
		if msg.Type == MsgAudioChunk {
			gotAudio = true
		}
	})

	c.postEvent(controllerEvent{kind: evVADStart})
	waitForState(t, c, StateListening)

	c.postEvent(controllerEvent{kind: evVADEnd})
	waitForState(t, c, StateWaitingForTranscript)

	c.postEvent(controllerEvent{kind: evTranscript, transcript: Transcript{Text: "what is the weather", IsFinal: true}})
	waitForState(t, c, StateListening)

	if !gotAudio {
		t.Error("expected at least one audio chunk to reach egress")
	}
	if llm.Calls != 1 {
		t.Errorf("expected 1 llm call, got %d", llm.Calls)
	}
}

func TestControllerSilentEndOfSpeechTimesOut(t *testing.T) {
	llm := &MockLLMProvider{Response: "unused"}
	tts := &MockTTSProvider{}
	c := newTestController(t, llm, tts, func(EgressMessage) {})

	c.postEvent(controllerEvent{kind: evVADStart})
	waitForState(t, c, StateListening)

	c.postEvent(controllerEvent{kind: evVADEnd})
	waitForState(t, c, StateWaitingForTranscript)

	// no transcript arrives; the wait timer should fire and return us
	// to Listening without ever dispatching generation.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && c.State() != StateListening {
		time.Sleep(10 * time.Millisecond)
	}
	if c.State() != StateListening {
		t.Fatalf("expected Listening after wait timeout, got %s", c.State())
	}
	if llm.Calls != 0 {
		t.Errorf("expected no llm call on timeout, got %d", llm.Calls)
	}
}

func TestControllerBargeInDuringSpeaking(t *testing.T) {
	llm := &MockLLMProvider{Response: "a long winded answer that keeps talking"}
	tts := &MockTTSProvider{Audio: []byte{1, 2, 3, 4}}

	interrupted := make(chan struct{}, 1)
	c := newTestController(t, llm, tts, func(msg EgressMessage) {
		if msg.Type == MsgBotResponseInterrupted {
			select {
			case interrupted <- struct{}{}:
			default:
			}
		}
	})

	c.postEvent(controllerEvent{kind: evVADStart})
	waitForState(t, c, StateListening)
	c.postEvent(controllerEvent{kind: evVADEnd})
	waitForState(t, c, StateWaitingForTranscript)
	c.postEvent(controllerEvent{kind: evTranscript, transcript: Transcript{Text: "tell me a long story", IsFinal: true}})

	waitForState(t, c, StateListening)

	// Simulate a barge-in arriving while the bot is still considered to
	// have pending audio (onVADStart treats any hadPending as
	// interrupt-worthy regardless of the observed state).
	c.pendingAudio = true
	c.postEvent(controllerEvent{kind: evVADStart})

	select {
	case <-interrupted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected bot_response_interrupted after barge-in")
	}
	if tts.AbortCalls == 0 {
		t.Error("expected TTS.Abort to be called on barge-in")
	}
}

func TestControllerLateTranscriptAfterDispatch(t *testing.T) {
	llm := &MockLLMProvider{Response: "final reply"}
	tts := &MockTTSProvider{Audio: []byte{1}}
	c := newTestController(t, llm, tts, func(EgressMessage) {})

	c.postEvent(controllerEvent{kind: evVADStart})
	waitForState(t, c, StateListening)
	c.postEvent(controllerEvent{kind: evVADEnd})
	waitForState(t, c, StateWaitingForTranscript)
	c.postEvent(controllerEvent{kind: evTranscript, transcript: Transcript{Text: "first part", IsFinal: true}})

	waitForState(t, c, StateListening)

	// A trailing final transcript shows up after the turn already
	// dispatched and completed; it should be absorbed without
	// triggering a second generation call.
	c.postEvent(controllerEvent{kind: evTranscript, transcript: Transcript{Text: "stray trailing words", IsFinal: true}})
	time.Sleep(50 * time.Millisecond)

	if llm.Calls != 1 {
		t.Errorf("expected exactly 1 llm call, got %d", llm.Calls)
	}
}

func TestControllerExplicitInterrupt(t *testing.T) {
	llm := &MockLLMProvider{Response: "some response"}
	tts := &MockTTSProvider{Audio: []byte{1, 2}}
	c := newTestController(t, llm, tts, func(EgressMessage) {})

	c.postEvent(controllerEvent{kind: evVADStart})
	waitForState(t, c, StateListening)
	c.postEvent(controllerEvent{kind: evVADEnd})
	waitForState(t, c, StateWaitingForTranscript)
	c.postEvent(controllerEvent{kind: evTranscript, transcript: Transcript{Text: "hello", IsFinal: true}})
	waitForState(t, c, StateListening)

	c.Interrupt()
	waitForState(t, c, StateListening)
}
