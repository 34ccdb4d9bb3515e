package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConversationChat(t *testing.T) {
	llm := &MockLLMProvider{Response: "hello there"}
	tts := &MockTTSProvider{Audio: []byte{1, 2, 3}}
	conv := NewConversation(nil, llm, tts)

	var chunks [][]byte
	resp, err := conv.Chat(context.Background(), "hi", func(chunk []byte) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello there" {
		t.Errorf("expected %q, got %q", "hello there", resp)
	}
	if len(chunks) == 0 {
		t.Error("expected at least one audio chunk")
	}
	if llm.Calls != 1 {
		t.Errorf("expected 1 llm call, got %d", llm.Calls)
	}
}

func TestConversationProcessAudio(t *testing.T) {
	stt := &MockSTTProvider{Transcript: "what time is it"}
	llm := &MockLLMProvider{Response: "it is noon"}
	tts := &MockTTSProvider{Audio: []byte{9}}
	conv := NewConversation(stt, llm, tts)

	transcript, resp, err := conv.ProcessAudio(context.Background(), []byte{0, 0, 0}, func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript != "what time is it" {
		t.Errorf("expected transcript %q, got %q", "what time is it", transcript)
	}
	if resp != "it is noon" {
		t.Errorf("expected response %q, got %q", "it is noon", resp)
	}
}

func TestConversationProcessAudioNilSTT(t *testing.T) {
	llm := &MockLLMProvider{Response: "unused"}
	tts := &MockTTSProvider{}
	conv := NewConversation(nil, llm, tts)

	_, _, err := conv.ProcessAudio(context.Background(), []byte{1}, nil)
	if !errors.Is(err, ErrNilProvider) {
		t.Errorf("expected ErrNilProvider, got %v", err)
	}
}

func TestConversationProcessAudioEmptyTranscript(t *testing.T) {
	stt := &MockSTTProvider{Transcript: "   "}
	llm := &MockLLMProvider{Response: "unused"}
	tts := &MockTTSProvider{}
	conv := NewConversation(stt, llm, tts)

	_, _, err := conv.ProcessAudio(context.Background(), []byte{1}, nil)
	if !errors.Is(err, ErrEmptyTranscription) {
		t.Errorf("expected ErrEmptyTranscription, got %v", err)
	}
}

func TestConversationTextOnly(t *testing.T) {
	llm := &MockLLMProvider{Response: "a plain reply"}
	conv := NewConversation(nil, llm, &MockTTSProvider{})

	resp, err := conv.TextOnly(context.Background(), "ping")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "a plain reply" {
		t.Errorf("expected %q, got %q", "a plain reply", resp)
	}
}

func TestConversationVoiceAndLanguage(t *testing.T) {
	conv := NewConversation(nil, &MockLLMProvider{}, &MockTTSProvider{})

	if err := conv.SetVoiceByString("F3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.GetConfig().Voice != VoiceF3 {
		t.Errorf("expected voice F3, got %s", conv.GetConfig().Voice)
	}

	if err := conv.SetVoiceByString("bogus"); err == nil {
		t.Error("expected error for invalid voice")
	}

	if err := conv.SetLanguageByString("fr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.GetConfig().Language != LanguageFr {
		t.Errorf("expected language fr, got %s", conv.GetConfig().Language)
	}

	if err := conv.SetLanguageByString("xx"); err == nil {
		t.Error("expected error for invalid language")
	}
}

func TestConversationHistoryAndReset(t *testing.T) {
	llm := &MockLLMProvider{Response: "reply one"}
	conv := NewConversation(nil, llm, &MockTTSProvider{})
	conv.SetVoice(VoiceM2)
	conv.SetLanguage(LanguageEs)

	if _, err := conv.TextOnly(context.Background(), "first message"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := conv.GetLastUserMessage(); got != "first message" {
		t.Errorf("expected last user message %q, got %q", "first message", got)
	}
	if got := conv.GetLastAssistantMessage(); got != "reply one" {
		t.Errorf("expected last assistant message %q, got %q", "reply one", got)
	}
	if len(conv.GetContext()) == 0 {
		t.Error("expected non-empty context after a turn")
	}

	conv.ClearContext()
	if len(conv.GetContext()) != 0 {
		t.Error("expected empty context after ClearContext")
	}

	conv.Reset()
	if conv.GetConfig().Voice != VoiceF1 || conv.GetConfig().Language != LanguageEn {
		t.Error("expected Reset to restore default voice/language")
	}
}

func TestConversationGetProviders(t *testing.T) {
	stt := &MockSTTProvider{}
	llm := &MockLLMProvider{}
	tts := &MockTTSProvider{}
	conv := NewConversation(stt, llm, tts)

	providers := conv.GetProviders()
	if providers["stt"] != "mock-stt" || providers["llm"] != "mock-llm" || providers["tts"] != "mock-tts" {
		t.Errorf("unexpected providers map: %#v", providers)
	}
}

func TestConversationSystemPrompt(t *testing.T) {
	llm := &MockLLMProvider{Response: "ok"}
	conv := NewConversationWithConfig(nil, llm, &MockTTSProvider{}, DefaultAgentConfig())
	conv.SetSystemPrompt("You are terse.")

	if !strings.Contains(conv.GetConfig().SystemPrompt, "terse") {
		t.Errorf("expected system prompt to be set, got %q", conv.GetConfig().SystemPrompt)
	}
}
