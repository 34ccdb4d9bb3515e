package orchestrator

import "errors"

var (
	// ErrEmptyTranscription is returned when STT produced no text.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrTranscriptionFailed wraps a failure from an STT provider.
	ErrTranscriptionFailed = errors.New("speech-to-text transcription failed")

	// ErrLLMFailed wraps a failure from an LLM provider.
	ErrLLMFailed = errors.New("language model generation failed")

	// ErrTTSFailed wraps a failure from a TTS provider.
	ErrTTSFailed = errors.New("text-to-speech synthesis failed")

	// ErrNilProvider is returned when a required provider was not wired.
	ErrNilProvider = errors.New("required provider is nil")

	// ErrContextCancelled marks an operation that stopped because its
	// context was cancelled, as opposed to failing outright.
	ErrContextCancelled = errors.New("operation cancelled by context")

	// ErrGenerationIdleTimeout fires when a streaming LLM call goes
	// quiet for longer than the per-chunk idle budget.
	ErrGenerationIdleTimeout = errors.New("generation pipeline idle timeout exceeded")

	// ErrGenerationOverallTimeout fires when a single turn's
	// generation exceeds its overall time budget.
	ErrGenerationOverallTimeout = errors.New("generation pipeline overall timeout exceeded")

	// ErrIngressQueueOverflow marks a dropped audio frame; the STT
	// streamer is falling behind the caller feeding frames.
	ErrIngressQueueOverflow = errors.New("ingress audio queue overflowed")

	// ErrSessionClosed is returned by operations attempted after the
	// session's Controller has been closed.
	ErrSessionClosed = errors.New("session is closed")
)
