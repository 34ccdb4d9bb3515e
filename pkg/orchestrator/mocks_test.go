package orchestrator

import (
	"context"
	"strings"
)

// MockSTTProvider returns a fixed transcript (or an error) regardless
// of the audio handed to it, matching the teacher's style of
// hand-rolled mocks rather than a generated/mockgen double.
type MockSTTProvider struct {
	Transcript string
	Err        error
	Calls      int
}

func (m *MockSTTProvider) Name() string { return "mock-stt" }

func (m *MockSTTProvider) Transcribe(ctx context.Context, audioPCM []byte, lang Language) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Transcript, nil
}

// MockLLMProvider echoes a canned response, word by word, through
// StreamComplete so buffer-policy behavior can be exercised without a
// real model.
type MockLLMProvider struct {
	Response string
	Err      error
	Calls    int
}

func (m *MockLLMProvider) Name() string { return "mock-llm" }

func (m *MockLLMProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

func (m *MockLLMProvider) StreamComplete(ctx context.Context, messages []Message, onEvent func(LLMEvent) error) error {
	m.Calls++
	if m.Err != nil {
		return m.Err
	}

	words := strings.Fields(m.Response)
	for i, w := range words {
		chunk := w
		if i < len(words)-1 {
			chunk += " "
		}
		evType := LLMChunk
		if i == 0 {
			evType = LLMFirstToken
		}
		if err := onEvent(LLMEvent{Type: evType, Content: chunk}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// MockTTSProvider records every synthesized string and returns a fixed
// byte payload, exercising Abort via an AbortCalls counter.
type MockTTSProvider struct {
	Audio      []byte
	Err        error
	Synthesized []string
	AbortCalls int
}

func (m *MockTTSProvider) Name() string { return "mock-tts" }

func (m *MockTTSProvider) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	m.Synthesized = append(m.Synthesized, text)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Audio, nil
}

func (m *MockTTSProvider) StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	m.Synthesized = append(m.Synthesized, text)
	if m.Err != nil {
		return m.Err
	}
	if len(m.Audio) == 0 {
		return nil
	}
	return onChunk(m.Audio)
}

func (m *MockTTSProvider) Abort() error {
	m.AbortCalls++
	return nil
}

// MockStreamingSTTProvider feeds a scripted sequence of transcripts to
// onTranscript as soon as anything is written to the returned channel,
// independent of the actual audio bytes.
type MockStreamingSTTProvider struct {
	Script []Transcript
	Err    error
}

func (m *MockStreamingSTTProvider) Name() string { return "mock-stt-stream" }

func (m *MockStreamingSTTProvider) StreamTranscribe(ctx context.Context, lang Language, onTranscript func(Transcript) error) (chan<- []byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	audioIn := make(chan []byte, 8)
	go func() {
		for range audioIn {
			for _, t := range m.Script {
				if err := onTranscript(t); err != nil {
					return
				}
			}
			m.Script = nil
		}
	}()
	return audioIn, nil
}
