package orchestrator

import (
	"context"
	"sync"
)

// MessageType discriminates the kinds of message the engine emits to
// a transport layer. Names match the wire vocabulary from §4.7/§6.
type MessageType string

const (
	MsgVADUpdate              MessageType = "vad_update"
	MsgSpeechStart            MessageType = "speech_start"
	MsgSpeechEnd              MessageType = "speech_end"
	MsgTranscriptUpdate       MessageType = "transcript_update"
	MsgBotRespondingStart     MessageType = "bot_responding_start"
	MsgBotRespondingEnd       MessageType = "bot_responding_end"
	MsgAssistantResponse      MessageType = "assistant_response"
	MsgAudioChunk             MessageType = "audio_chunk"
	MsgAudioStreamEnd         MessageType = "audio_stream_end"
	MsgInterrupt              MessageType = "interrupt"
	MsgBotResponseInterrupted MessageType = "bot_response_interrupted"
	MsgTelemetryUpdate        MessageType = "telemetry_update"
	MsgError                  MessageType = "error"
)

// EgressMessage is the single discriminated-union type carried on the
// egress sink. Only the fields relevant to Type are populated.
type EgressMessage struct {
	Type       MessageType
	Text       string
	IsFinal    bool
	IsComplete bool
	Audio      []byte
	VADProb    float64
	Telemetry  TurnStateSnapshot
	Err        string
}

// Egress is the sink every engine component writes outbound messages
// to. The transport layer (websocket, gRPC stream, whatever) owns
// wire encoding; the engine only guarantees message ordering relative
// to the events that produced them.
type Egress interface {
	Send(ctx context.Context, msg EgressMessage) error
}

// ChannelEgress is the default Egress: a buffered channel plus a
// drain operation for discarding queued audio on barge-in, mirroring
// the teacher's ManagedStream.drainAudioChunks.
type ChannelEgress struct {
	ch chan EgressMessage
}

// NewChannelEgress creates a ChannelEgress with the given buffer
// depth. 1024 matches the teacher's ManagedStream.events buffer.
func NewChannelEgress(buffer int) *ChannelEgress {
	if buffer <= 0 {
		buffer = 1024
	}
	return &ChannelEgress{ch: make(chan EgressMessage, buffer)}
}

// Messages returns the read side for a transport layer to consume.
func (e *ChannelEgress) Messages() <-chan EgressMessage {
	return e.ch
}

// Send blocks until the message is queued or ctx is cancelled.
func (e *ChannelEgress) Send(ctx context.Context, msg EgressMessage) error {
	select {
	case e.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DrainAudio removes any currently queued audio_chunk messages without
// blocking, leaving every other message (speech_start, interrupt,
// audio_stream_end, transcript updates, ...) in place and in order.
// It returns the number of audio chunks dropped. Called by
// the Controller when cancelling a turn so stale audio never reaches
// the transport after an interrupt.
func (e *ChannelEgress) DrainAudio() int {
	var kept []EgressMessage
	dropped := 0
drain:
	for {
		select {
		case m := <-e.ch:
			if m.Type == MsgAudioChunk {
				dropped++
				continue
			}
			kept = append(kept, m)
		default:
			break drain
		}
	}
	for _, m := range kept {
		select {
		case e.ch <- m:
		default:
			// buffer is exactly as full as it was; this can't happen
			// since we only removed from it above, but don't block.
		}
	}
	return dropped
}

// synchronousEgress is a trivial Egress used by tests and by
// Conversation's one-shot helpers, where messages are consumed
// directly via a callback instead of a channel.
type synchronousEgress struct {
	mu sync.Mutex
	on func(EgressMessage)
}

func newSynchronousEgress(on func(EgressMessage)) *synchronousEgress {
	return &synchronousEgress{on: on}
}

func (e *synchronousEgress) Send(ctx context.Context, msg EgressMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.on != nil {
		e.on(msg)
	}
	return nil
}
