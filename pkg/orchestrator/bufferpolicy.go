package orchestrator

import "strings"

// BufferPolicy controls how aggressively the Generation Pipeline
// groups LLM token output into units before handing them to the TTS
// Streamer. Grounded on original_source's PRE_TTS_BUFFERING_LEVEL.
type BufferPolicy int

const (
	// BufferNone forwards every non-empty token verbatim, as soon as
	// it arrives.
	BufferNone BufferPolicy = iota
	// BufferLow flushes at each whitespace-delimited word boundary.
	BufferLow
	// BufferMedium flushes the first four words whenever four
	// whitespace-terminated words are buffered; otherwise it flushes up
	// to the first sentence terminator. The four-word check runs first.
	BufferMedium
	// BufferHigh only flushes at sentence terminators.
	BufferHigh
)

func (b BufferPolicy) String() string {
	switch b {
	case BufferNone:
		return "none"
	case BufferLow:
		return "low"
	case BufferMedium:
		return "medium"
	case BufferHigh:
		return "high"
	default:
		return "unknown"
	}
}

// sentenceTerminators is the literal terminator set from the rule
// text (".", "!", "?", ";", ":") — see DESIGN.md's Open Question
// resolution for why this doesn't include a comma even though one
// appears in a worked example elsewhere.
const sentenceTerminators = ".!?;:"

// tokenBuffer incrementally groups pushed text into flush units per a
// BufferPolicy. It is not safe for concurrent use; the Generation
// Pipeline owns one per turn.
type tokenBuffer struct {
	policy BufferPolicy
	buf    strings.Builder
}

func newTokenBuffer(policy BufferPolicy) *tokenBuffer {
	return &tokenBuffer{policy: policy}
}

// Push appends token text and returns zero or more complete units
// ready to flush downstream.
func (b *tokenBuffer) Push(token string) []string {
	if token == "" {
		return nil
	}
	if b.policy == BufferNone {
		return []string{token}
	}
	b.buf.WriteString(token)

	var out []string
	for {
		s := b.buf.String()
		unit, rest, ok := b.tryExtract(s)
		if !ok {
			break
		}
		out = append(out, unit)
		b.buf.Reset()
		b.buf.WriteString(rest)
	}
	return out
}

// tryExtract looks for one complete unit at the front of s.
func (b *tokenBuffer) tryExtract(s string) (unit, rest string, ok bool) {
	switch b.policy {
	case BufferLow:
		idx := strings.IndexAny(s, " \t\n\r")
		if idx < 0 {
			return "", s, false
		}
		return s[:idx+1], s[idx+1:], true

	case BufferMedium:
		if end, ok := firstNWordsEnd(s, 4); ok {
			return s[:end], s[end:], true
		}
		// first terminator, not last — keeps flush boundaries
		// independent of how the caller chunks tokens.
		if idx := strings.IndexAny(s, sentenceTerminators); idx >= 0 {
			return s[:idx+1], s[idx+1:], true
		}
		return "", s, false

	case BufferHigh:
		if idx := strings.IndexAny(s, sentenceTerminators); idx >= 0 {
			return s[:idx+1], s[idx+1:], true
		}
		return "", s, false

	default:
		return "", s, false
	}
}

// Flush returns whatever is left in the buffer as a final residual
// unit (used once the LLM stream itself has ended).
func (b *tokenBuffer) Flush() []string {
	s := b.buf.String()
	b.buf.Reset()
	if s == "" {
		return nil
	}
	return []string{s}
}

// firstNWordsEnd returns the byte offset just past the trailing
// whitespace of the n-th whitespace-delimited word in s, if s
// contains at least n complete (whitespace-terminated) words.
func firstNWordsEnd(s string, n int) (end int, ok bool) {
	word := 0
	inWord := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			if inWord {
				word++
				inWord = false
				if word == n {
					return i + 1, true
				}
			}
		default:
			inWord = true
		}
	}
	return 0, false
}
