package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	generationIdleTimeout    = 10 * time.Second
	generationOverallTimeout = 30 * time.Second
)

// GenerationPipeline runs retrieval, prompt construction, and LLM
// streaming for one turn, handing buffered text units to the TTS
// Streamer via textUnits and the raw token stream to onAssistantText
// for egress. Grounded on the teacher's ManagedStream.runLLMAndTTS and
// original_source's RAG-preload-with-fallback pattern.
type GenerationPipeline struct {
	llm              LLMProvider
	retrieval        RetrievalHandle
	cache            RetrievalCache
	retrievalTopK    int
	retrievalEnabled bool

	history      *ConversationHistory
	maxHistory   int
	systemPrompt string
	bufferPolicy BufferPolicy
	logger       Logger
}

// NewGenerationPipeline builds a pipeline from a Session's wiring.
func NewGenerationPipeline(session *Session) *GenerationPipeline {
	logger := session.Logger
	if logger == nil {
		logger = NoOpLogger{}
	}
	retrieval := session.Retrieval
	if retrieval == nil {
		retrieval = NoRetrieval{}
	}
	return &GenerationPipeline{
		llm:              session.LLM,
		retrieval:        retrieval,
		cache:            session.Cache,
		retrievalTopK:    session.Config.RetrievalTopK,
		retrievalEnabled: session.Config.RetrievalEnabled,
		history:          session.History,
		maxHistory:       4,
		systemPrompt:     session.Config.SystemPrompt,
		bufferPolicy:     session.Config.BufferPolicy,
		logger:           logger,
	}
}

// Run retrieves context, builds the prompt, streams the LLM
// completion, and pushes buffered text units onto textUnits, closing
// it when the turn's generation is done (successfully or not).
// onAssistantText is called with each raw token (for egress
// echoing) and once more with isComplete=true at the end.
func (g *GenerationPipeline) Run(ctx context.Context, userText string, textUnits chan<- string, onAssistantText func(text string, isComplete bool)) error {
	defer close(textUnits)

	overallCtx, cancel := context.WithTimeout(ctx, generationOverallTimeout)
	defer cancel()

	contexts := g.retrieveContexts(overallCtx, userText)
	messages := g.buildPrompt(userText, contexts)

	events := make(chan LLMEvent, 16)
	go func() {
		streamErr := g.llm.StreamComplete(overallCtx, messages, func(ev LLMEvent) error {
			select {
			case events <- ev:
				return nil
			case <-overallCtx.Done():
				return overallCtx.Err()
			}
		})
		if streamErr != nil {
			select {
			case events <- LLMEvent{Type: LLMErrorEvent, Err: streamErr}:
			case <-overallCtx.Done():
			}
		}
		close(events)
	}()

	tb := newTokenBuffer(g.bufferPolicy)
	idle := time.NewTimer(generationIdleTimeout)
	defer idle.Stop()

	var full strings.Builder

	flush := func(units []string) error {
		for _, unit := range units {
			select {
			case textUnits <- unit:
			case <-overallCtx.Done():
				return overallCtx.Err()
			}
		}
		return nil
	}

	for {
		select {
		case <-overallCtx.Done():
			if ctx.Err() == nil && errors.Is(overallCtx.Err(), context.DeadlineExceeded) {
				return ErrGenerationOverallTimeout
			}
			return overallCtx.Err()

		case <-idle.C:
			return ErrGenerationIdleTimeout

		case ev, ok := <-events:
			if !ok {
				if err := flush(tb.Flush()); err != nil {
					return err
				}
				onAssistantText("", true)
				if g.history != nil && full.Len() > 0 {
					g.history.Add("assistant", full.String())
				}
				return nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(generationIdleTimeout)

			switch ev.Type {
			case LLMErrorEvent:
				return ev.Err
			case LLMFirstToken, LLMChunk:
				if ev.Content == "" {
					continue
				}
				full.WriteString(ev.Content)
				onAssistantText(ev.Content, false)
				if err := flush(tb.Push(ev.Content)); err != nil {
					return err
				}
			case LLMComplete:
				// Some providers emit an explicit terminal event in
				// addition to closing the channel; nothing to do here,
				// the channel close drives the final flush.
			}
		}
	}
}

func (g *GenerationPipeline) retrieveContexts(ctx context.Context, text string) []RetrievalContext {
	if !g.retrievalEnabled || g.retrieval == nil {
		return nil
	}

	key := cacheKey(text)
	if g.cache != nil {
		if cached, ok := g.cache.Get(key); ok {
			return cached
		}
	}

	topK := g.retrievalTopK
	if topK <= 0 {
		topK = 4
	}

	contexts, err := g.retrieval.Retrieve(ctx, text, topK)
	if err != nil {
		g.logger.Warn("retrieval failed, degrading to empty context", "error", err)
		return nil
	}

	if g.cache != nil {
		g.cache.Set(key, contexts)
	}
	return contexts
}

func (g *GenerationPipeline) buildPrompt(userText string, contexts []RetrievalContext) []Message {
	var messages []Message

	if g.systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: g.systemPrompt})
	}

	if len(contexts) > 0 {
		var b strings.Builder
		b.WriteString("Relevant context:\n")
		for _, c := range contexts {
			b.WriteString("- ")
			b.WriteString(c.Text)
			b.WriteString("\n")
		}
		messages = append(messages, Message{Role: "system", Content: b.String()})
	}

	var tail []HistoryEntry
	if g.history != nil {
		tail = g.history.Tail(g.maxHistory)
	}
	for _, e := range tail {
		messages = append(messages, Message{Role: e.Role, Content: e.Content})
	}

	messages = append(messages, Message{Role: "user", Content: userText})
	if g.history != nil {
		g.history.Add("user", userText)
	}

	return messages
}
