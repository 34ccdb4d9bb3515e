package orchestrator

import (
	"sync"
	"time"
)

// HistoryEntry is one recorded turn of conversation history.
type HistoryEntry struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// ConversationHistory is a capped, mutex-guarded log of conversation
// turns, generalized from the teacher's ConversationSession.Context
// field into its own type so Session can compose it independently of
// voice/language state.
type ConversationHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	cap     int
}

// NewConversationHistory creates a history capped at capN entries
// (oldest dropped first). capN <= 0 means unbounded.
func NewConversationHistory(capN int) *ConversationHistory {
	return &ConversationHistory{cap: capN}
}

func (h *ConversationHistory) Add(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, HistoryEntry{Role: role, Content: content, CreatedAt: time.Now()})
	if h.cap > 0 && len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
}

// Tail returns a copy of the last n entries (or all of them if n <= 0
// or exceeds the length).
func (h *ConversationHistory) Tail(n int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n >= len(h.entries) {
		out := make([]HistoryEntry, len(h.entries))
		copy(out, h.entries)
		return out
	}
	out := make([]HistoryEntry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

func (h *ConversationHistory) All() []HistoryEntry {
	return h.Tail(0)
}

func (h *ConversationHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

func (h *ConversationHistory) LastByRole(role string) (HistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Role == role {
			return h.entries[i], true
		}
	}
	return HistoryEntry{}, false
}

// Session bundles everything one conversational session needs: its
// identity, resolved behavior config, provider set, and the mutable
// state (history, retrieval cache) a Controller mutates turn by turn.
// Generalized from the teacher's ConversationSession, which conflated
// voice/language/history into one type; Session instead composes the
// pieces SPEC_FULL.md's data model names separately.
type Session struct {
	ID      string
	AgentID string

	Config        AgentConfig
	SessionConfig SessionConfig

	History   *ConversationHistory
	Retrieval RetrievalHandle
	Cache     RetrievalCache

	VAD VADGate
	STT StreamingSTTProvider
	LLM LLMProvider
	TTS TTSProvider

	Logger Logger
}

// NewSession wires a Session from its component parts. Retrieval,
// Cache, and Logger default to NoRetrieval, a fresh session-local
// cache, and NoOpLogger respectively when nil.
func NewSession(id, agentID string, cfg AgentConfig, sessCfg SessionConfig) *Session {
	return &Session{
		ID:            id,
		AgentID:       agentID,
		Config:        cfg,
		SessionConfig: sessCfg,
		History:       NewConversationHistory(sessCfg.MaxHistory),
		Retrieval:     NoRetrieval{},
		Cache:         NewSessionRetrievalCache(sessCfg.RetrievalCacheTTL),
		Logger:        NoOpLogger{},
	}
}
