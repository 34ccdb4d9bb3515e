package orchestrator

import "context"

// STTStreamer drains an Ingress queue into a StreamingSTTProvider and
// forwards every partial/final transcript to the Controller. Grounded
// on the teacher's ManagedStream.startStreamingSTT.
type STTStreamer struct {
	provider     StreamingSTTProvider
	lang         Language
	onTranscript func(Transcript)
	onError      func(error)
}

// NewSTTStreamer wires a streamer; onTranscript and onError are
// called from whatever goroutine Run is invoked on.
func NewSTTStreamer(provider StreamingSTTProvider, lang Language, onTranscript func(Transcript), onError func(error)) *STTStreamer {
	return &STTStreamer{provider: provider, lang: lang, onTranscript: onTranscript, onError: onError}
}

// Run blocks, draining audioQueue into the provider until ctx is
// cancelled or the queue is closed. Reconnection on provider failure
// is out of scope: a fatal error bubbles to onError and Run returns.
func (s *STTStreamer) Run(ctx context.Context, audioQueue <-chan []byte) {
	sttChan, err := s.provider.StreamTranscribe(ctx, s.lang, func(t Transcript) error {
		s.onTranscript(t)
		return nil
	})
	if err != nil {
		s.onError(err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-audioQueue:
			if !ok {
				return
			}
			select {
			case sttChan <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}
