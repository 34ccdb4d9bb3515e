package orchestrator

import "time"

// ControllerState is one of the four states the Turn Controller's
// event loop can be in for a given session.
type ControllerState string

const (
	StateListening            ControllerState = "listening"
	StateWaitingForTranscript ControllerState = "waiting_for_transcript"
	StateThinking             ControllerState = "thinking"
	StateSpeaking             ControllerState = "speaking"
)

// TurnState tracks the flags and timestamps of one conversational
// turn. It is reset whenever a new speech_start transition begins a
// turn. Mirrors the original_source AgentState/TurnState split: the
// Controller's ControllerState is the coarse phase, TurnState is the
// fine-grained bookkeeping used to derive latency.
type TurnState struct {
	VADSpeechDetected      bool
	VADEndOfSpeechDetected bool
	STTStreamingStarted    bool
	STTStreamingEnded      bool
	LLMStreamingStarted    bool
	LLMStreamingEnded      bool
	TTSStreamingStarted    bool
	TTSStreamingEnded      bool
	EgressStarted          bool
	EgressEnded            bool

	VADEndOfSpeechDetectedTime time.Time
	EgressStartedTime          time.Time
}

// NewTurnState returns a fresh, all-zero TurnState for the start of a
// new turn.
func NewTurnState() *TurnState {
	return &TurnState{}
}

// AgentResponseDelay is egress_started_time - vad_end_of_speech_detected_time.
// The second return value is false until both timestamps are set.
func (t *TurnState) AgentResponseDelay() (time.Duration, bool) {
	if t.VADEndOfSpeechDetectedTime.IsZero() || t.EgressStartedTime.IsZero() {
		return 0, false
	}
	d := t.EgressStartedTime.Sub(t.VADEndOfSpeechDetectedTime)
	if d < 0 {
		d = 0
	}
	return d, true
}

// TurnStateSnapshot is the immutable, loggable/exportable view of a
// TurnState at one point in time.
type TurnStateSnapshot struct {
	Flags                 map[string]bool
	AgentResponseDelayMS  int64
	HasAgentResponseDelay bool
}

// Snapshot captures the current flags plus the derived latency, if
// available yet.
func (t *TurnState) Snapshot() TurnStateSnapshot {
	delay, ok := t.AgentResponseDelay()
	snap := TurnStateSnapshot{
		Flags: map[string]bool{
			"vad_speech_detected":        t.VADSpeechDetected,
			"vad_end_of_speech_detected": t.VADEndOfSpeechDetected,
			"stt_streaming_started":      t.STTStreamingStarted,
			"stt_streaming_ended":        t.STTStreamingEnded,
			"llm_streaming_started":      t.LLMStreamingStarted,
			"llm_streaming_ended":        t.LLMStreamingEnded,
			"tts_streaming_started":      t.TTSStreamingStarted,
			"tts_streaming_ended":        t.TTSStreamingEnded,
			"egress_started":             t.EgressStarted,
			"egress_ended":               t.EgressEnded,
		},
		HasAgentResponseDelay: ok,
	}
	if ok {
		snap.AgentResponseDelayMS = delay.Milliseconds()
	}
	return snap
}
