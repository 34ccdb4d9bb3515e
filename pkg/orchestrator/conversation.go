package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Conversation is a synchronous, one-turn-at-a-time convenience
// wrapper around Session/GenerationPipeline/TTSStreamer for callers
// that don't need full-duplex barge-in semantics (batch transcription,
// request/response chat, text-only). Generalized from the teacher's
// Conversation wrapper around Orchestrator/ConversationSession; the
// full-duplex streaming path lives in Controller instead.
type Conversation struct {
	mu sync.RWMutex

	session *Session
	stt     STTProvider
	gen     *GenerationPipeline
}

// NewConversation builds a Conversation with default agent/session
// config. stt may be nil if only TextOnly/Chat will be used.
func NewConversation(stt STTProvider, llm LLMProvider, tts TTSProvider) *Conversation {
	return NewConversationWithConfig(stt, llm, tts, DefaultAgentConfig())
}

// NewConversationWithConfig builds a Conversation with an explicit
// AgentConfig (voice, language, system prompt, buffering policy).
func NewConversationWithConfig(stt STTProvider, llm LLMProvider, tts TTSProvider, cfg AgentConfig) *Conversation {
	id := fmt.Sprintf("conv_%d", time.Now().UnixNano())
	session := NewSession(id, "default", cfg, DefaultSessionConfig())
	session.LLM = llm
	session.TTS = tts

	return &Conversation{
		session: session,
		stt:     stt,
		gen:     NewGenerationPipeline(session),
	}
}

func (c *Conversation) SetVoice(voice Voice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Config.Voice = voice
}

var validVoices = map[Voice]bool{
	VoiceF1: true, VoiceF2: true, VoiceF3: true, VoiceF4: true, VoiceF5: true,
	VoiceM1: true, VoiceM2: true, VoiceM3: true, VoiceM4: true, VoiceM5: true,
}

func (c *Conversation) SetVoiceByString(voice string) error {
	v := Voice(voice)
	if !validVoices[v] {
		return fmt.Errorf("invalid voice: %s (must be F1-F5 or M1-M5)", voice)
	}
	c.SetVoice(v)
	return nil
}

func (c *Conversation) SetLanguage(language Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Config.Language = language
}

var validLanguages = map[Language]bool{
	LanguageEn: true, LanguageEs: true, LanguageFr: true, LanguageDe: true,
	LanguageIt: true, LanguagePt: true, LanguageJa: true, LanguageZh: true,
}

func (c *Conversation) SetLanguageByString(language string) error {
	lang := Language(language)
	if !validLanguages[lang] {
		return fmt.Errorf("invalid language: %s", language)
	}
	c.SetLanguage(lang)
	return nil
}

func (c *Conversation) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Config.SystemPrompt = prompt
}

// ProcessAudio transcribes audioBytes with the Conversation's batch
// STTProvider, then runs it through Chat exactly as if the transcript
// had been typed. Returns the transcript and the assistant's response.
func (c *Conversation) ProcessAudio(ctx context.Context, audioBytes []byte, onAudioChunk func([]byte) error) (string, string, error) {
	if c.stt == nil {
		return "", "", ErrNilProvider
	}

	c.mu.RLock()
	lang := c.session.Config.Language
	c.mu.RUnlock()

	transcript, err := c.stt.Transcribe(ctx, audioBytes, lang)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return "", "", ErrEmptyTranscription
	}

	response, err := c.Chat(ctx, transcript, onAudioChunk)
	if err != nil {
		return "", "", err
	}
	return transcript, response, nil
}

// Chat runs one turn of generation and streams the resulting speech to
// onAudioChunk as it's synthesized, returning the full text response.
func (c *Conversation) Chat(ctx context.Context, text string, onAudioChunk func([]byte) error) (string, error) {
	c.mu.RLock()
	voice, lang := c.session.Config.Voice, c.session.Config.Language
	c.mu.RUnlock()

	textUnits := make(chan string, 32)
	var response strings.Builder

	genErr := make(chan error, 1)
	go func() {
		genErr <- c.gen.Run(ctx, text, textUnits, func(chunk string, isComplete bool) {
			if !isComplete {
				response.WriteString(chunk)
			}
		})
	}()

	var chunkErr error
	ttsDone := make(chan struct{})
	go func() {
		defer close(ttsDone)
		streamer := NewTTSStreamer(c.session.TTS, voice, lang,
			func() {},
			func(chunk []byte) {
				if onAudioChunk != nil {
					if err := onAudioChunk(chunk); err != nil && chunkErr == nil {
						chunkErr = err
					}
				}
			},
			func() {},
			func(err error) { chunkErr = err },
		)
		streamer.Run(ctx, textUnits)
	}()

	if err := <-genErr; err != nil {
		<-ttsDone
		return "", err
	}
	<-ttsDone
	if chunkErr != nil {
		return "", chunkErr
	}

	return response.String(), nil
}

// TextOnly runs one turn of generation without synthesizing audio.
func (c *Conversation) TextOnly(ctx context.Context, text string) (string, error) {
	textUnits := make(chan string, 32)
	var response strings.Builder

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range textUnits {
		}
	}()

	err := c.gen.Run(ctx, text, textUnits, func(chunk string, isComplete bool) {
		if !isComplete {
			response.WriteString(chunk)
		}
	})
	<-drained
	if err != nil {
		return "", err
	}
	return response.String(), nil
}

func (c *Conversation) GetContext() []Message {
	entries := c.session.History.All()
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, Message{Role: e.Role, Content: e.Content, CreatedAt: e.CreatedAt})
	}
	return out
}

func (c *Conversation) GetLastUserMessage() string {
	e, _ := c.session.History.LastByRole("user")
	return e.Content
}

func (c *Conversation) GetLastAssistantMessage() string {
	e, _ := c.session.History.LastByRole("assistant")
	return e.Content
}

func (c *Conversation) ClearContext() {
	c.session.History.Clear()
}

func (c *Conversation) Reset() {
	c.session.History.Clear()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Config.Voice = VoiceF1
	c.session.Config.Language = LanguageEn
}

func (c *Conversation) GetSessionID() string {
	return c.session.ID
}

// GetProviders reports the provider names wired into this
// Conversation, keyed by role ("llm", "tts", "stt").
func (c *Conversation) GetProviders() map[string]string {
	providers := map[string]string{}
	if c.session.LLM != nil {
		providers["llm"] = c.session.LLM.Name()
	}
	if c.session.TTS != nil {
		providers["tts"] = c.session.TTS.Name()
	}
	if c.stt != nil {
		providers["stt"] = c.stt.Name()
	}
	return providers
}

func (c *Conversation) GetConfig() AgentConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Config
}
