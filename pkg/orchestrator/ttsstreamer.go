package orchestrator

import "context"

// TTSStreamer drains textUnits into a TTSProvider and forwards audio
// chunks as they arrive. Grounded on the teacher's
// ManagedStream.runLLMAndTTS TTS half and pkg/providers/tts/lokutor.go.
type TTSStreamer struct {
	tts   TTSProvider
	voice Voice
	lang  Language

	onFirstChunk func()
	onChunk      func([]byte)
	onEnd        func()
	onError      func(error)
}

func NewTTSStreamer(tts TTSProvider, voice Voice, lang Language, onFirstChunk func(), onChunk func([]byte), onEnd func(), onError func(error)) *TTSStreamer {
	return &TTSStreamer{
		tts:          tts,
		voice:        voice,
		lang:         lang,
		onFirstChunk: onFirstChunk,
		onChunk:      onChunk,
		onEnd:        onEnd,
		onError:      onError,
	}
}

// Run synthesizes every text unit in order until textUnits is closed
// or ctx is cancelled. On sentinel (channel close) or cancellation it
// calls onEnd exactly once; on a provider error before that it calls
// onError instead and returns without calling onEnd.
func (t *TTSStreamer) Run(ctx context.Context, textUnits <-chan string) {
	first := true

	for {
		select {
		case <-ctx.Done():
			t.onEnd()
			return
		case unit, ok := <-textUnits:
			if !ok {
				t.onEnd()
				return
			}

			err := t.tts.StreamSynthesize(ctx, unit, t.voice, t.lang, func(chunk []byte) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if first {
					first = false
					t.onFirstChunk()
				}
				t.onChunk(chunk)
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					t.onEnd()
				} else {
					t.onError(err)
				}
				return
			}
		}
	}
}
