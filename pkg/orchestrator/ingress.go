package orchestrator

import "sync/atomic"

// sttQueueCapacity bounds how many frames can be pending for the STT
// Streamer before Ingress starts dropping the oldest one. Grounded on
// the teacher's ManagedStream keeping only a rolling ~1.5s window of
// audio rather than an unbounded buffer.
const sttQueueCapacity = 64

// Ingress is the audio-frame front door for a session: it cleans each
// incoming frame of speaker echo, runs it through the VAD gate, and
// feeds it to a bounded queue the STT Streamer drains. It never
// blocks the caller — on overflow it drops the oldest queued frame
// and counts the drop.
type Ingress struct {
	vad   VADGate
	echo  *EchoSuppressor
	queue chan []byte

	dropped uint64
}

// NewIngress wires a VAD gate (required) and an optional echo
// suppressor (nil disables echo cleaning).
func NewIngress(vad VADGate, echo *EchoSuppressor) *Ingress {
	return &Ingress{
		vad:   vad,
		echo:  echo,
		queue: make(chan []byte, sttQueueCapacity),
	}
}

// PushFrame cleans, VAD-gates, and queues one frame, returning any
// speech_start/speech_end transitions it produced. overflowed reports
// whether queuing this frame required dropping the oldest one.
func (in *Ingress) PushFrame(frame []byte) (events []VADEvent, overflowed bool, err error) {
	cleaned := frame
	if in.echo != nil {
		cleaned = in.echo.Clean(frame)
	}

	events, err = in.vad.Push(cleaned)
	if err != nil {
		return nil, false, err
	}

	select {
	case in.queue <- cleaned:
	default:
		select {
		case <-in.queue:
		default:
		}
		select {
		case in.queue <- cleaned:
		default:
		}
		atomic.AddUint64(&in.dropped, 1)
		overflowed = true
	}

	return events, overflowed, nil
}

// Queue is the STT Streamer's read side.
func (in *Ingress) Queue() <-chan []byte {
	return in.queue
}

// DroppedFrames returns the running count of frames dropped due to
// queue overflow.
func (in *Ingress) DroppedFrames() uint64 {
	return atomic.LoadUint64(&in.dropped)
}

// RecordPlayback forwards a chunk of just-synthesized audio to the
// echo suppressor, if one is configured, so future frames can be
// checked against it.
func (in *Ingress) RecordPlayback(chunk []byte) {
	if in.echo != nil {
		in.echo.RecordPlayback(chunk)
	}
}

// ClearEcho discards buffered playback audio, called on interrupt so
// stale playback doesn't keep suppressing legitimate speech.
func (in *Ingress) ClearEcho() {
	if in.echo != nil {
		in.echo.ClearEchoBuffer()
	}
}
