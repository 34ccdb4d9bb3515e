package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AgentConfig is the per-agent behavior resolved by an
// AgentConfigResolver: which system prompt to use, how aggressively to
// buffer TTS output, voice/language defaults, and whether retrieval is
// enabled at all.
type AgentConfig struct {
	SystemPrompt     string
	BufferPolicy     BufferPolicy
	Voice            Voice
	Language         Language
	RetrievalEnabled bool
	RetrievalTopK    int
}

// DefaultAgentConfig mirrors the teacher's DefaultConfig() defaults
// where they carry over (voice, language) plus this engine's own
// additions.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		BufferPolicy:     BufferMedium,
		Voice:            VoiceF1,
		Language:         LanguageEn,
		RetrievalEnabled: false,
		RetrievalTopK:    4,
	}
}

// AgentConfigResolver resolves an agent id to its AgentConfig. This is
// the engine's only contact point with whatever stores agent
// configuration (a database, a config service); that storage layer is
// out of scope here.
type AgentConfigResolver interface {
	Resolve(ctx context.Context, agentID string) (AgentConfig, error)
}

// StaticConfigResolver is an in-memory AgentConfigResolver, the
// default for tests and simple deployments. A real deployment backs
// this interface with the excluded database layer instead.
type StaticConfigResolver struct {
	mu      sync.RWMutex
	configs map[string]AgentConfig
}

func NewStaticConfigResolver() *StaticConfigResolver {
	return &StaticConfigResolver{configs: make(map[string]AgentConfig)}
}

func (r *StaticConfigResolver) Set(agentID string, cfg AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[agentID] = cfg
}

func (r *StaticConfigResolver) Resolve(ctx context.Context, agentID string) (AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[agentID]
	if !ok {
		return AgentConfig{}, fmt.Errorf("no config registered for agent %q", agentID)
	}
	return cfg, nil
}

// SessionConfig holds the audio/timing parameters a session runs
// with, as opposed to AgentConfig's conversational behavior.
type SessionConfig struct {
	SampleRate        int
	Channels          int
	BytesPerSample    int
	MaxHistory        int
	VADHangover       time.Duration
	RetrievalCacheTTL time.Duration
}

// DefaultSessionConfig mirrors the teacher's DefaultConfig() audio
// defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SampleRate:        16000,
		Channels:          1,
		BytesPerSample:    2,
		MaxHistory:        20,
		VADHangover:       300 * time.Millisecond,
		RetrievalCacheTTL: 5 * time.Minute,
	}
}
