package orchestrator

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenBufferNoneForwardsEveryToken(t *testing.T) {
	b := newTokenBuffer(BufferNone)
	if got := b.Push("hel"); !reflect.DeepEqual(got, []string{"hel"}) {
		t.Errorf("expected immediate forward, got %v", got)
	}
	if got := b.Push("lo"); !reflect.DeepEqual(got, []string{"lo"}) {
		t.Errorf("expected immediate forward, got %v", got)
	}
	if got := b.Push(""); got != nil {
		t.Errorf("expected nil for empty token, got %v", got)
	}
}

func TestTokenBufferLowFlushesOnWordBoundary(t *testing.T) {
	b := newTokenBuffer(BufferLow)

	var got []string
	got = append(got, b.Push("hello ")...)
	got = append(got, b.Push("there")...)
	got = append(got, b.Push(" friend")...)

	want := []string{"hello ", "there "}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	rest := b.Flush()
	if !reflect.DeepEqual(rest, []string{"friend"}) {
		t.Errorf("expected residual 'friend', got %v", rest)
	}
}

func TestTokenBufferMediumFlushesAfterFourWordsOrTerminator(t *testing.T) {
	b := newTokenBuffer(BufferMedium)

	var out []string
	for _, tok := range []string{"The ", "quick ", "brown ", "fox ", "jumps. ", "Done"} {
		out = append(out, b.Push(tok)...)
	}

	if len(out) == 0 {
		t.Fatal("expected at least one flush unit")
	}
	if out[0] != "The quick brown fox " {
		t.Errorf("expected first unit to be the first 4 words, got %q", out[0])
	}

	joined := strings.Join(out, "") + strings.Join(b.Flush(), "")
	want := "The quick brown fox jumps. Done"
	if joined != want {
		t.Errorf("expected reassembled text %q, got %q", want, joined)
	}
}

func TestTokenBufferMediumShortUtteranceFlushesOnTerminatorBeforeFourWords(t *testing.T) {
	b := newTokenBuffer(BufferMedium)

	out := b.Push("Hi! ")
	if !reflect.DeepEqual(out, []string{"Hi!"}) {
		t.Errorf("expected terminator-triggered flush before 4 words, got %v", out)
	}
}

func TestTokenBufferHighOnlyFlushesOnSentenceTerminators(t *testing.T) {
	b := newTokenBuffer(BufferHigh)

	var out []string
	out = append(out, b.Push("This is one sentence")...)
	if len(out) != 0 {
		t.Fatalf("expected no flush before a terminator, got %v", out)
	}
	out = append(out, b.Push(" without a pause. And another")...)

	if len(out) != 1 || out[0] != "This is one sentence without a pause." {
		t.Errorf("unexpected flush units: %v", out)
	}

	rest := b.Flush()
	if !reflect.DeepEqual(rest, []string{" And another"}) {
		t.Errorf("expected residual ' And another', got %v", rest)
	}
}

func TestTokenBufferFlushEmptyReturnsNil(t *testing.T) {
	b := newTokenBuffer(BufferMedium)
	if got := b.Flush(); got != nil {
		t.Errorf("expected nil flush on an empty buffer, got %v", got)
	}
}

func TestBufferPolicyString(t *testing.T) {
	cases := map[BufferPolicy]string{
		BufferNone:         "none",
		BufferLow:          "low",
		BufferMedium:       "medium",
		BufferHigh:         "high",
		BufferPolicy(99):   "unknown",
	}
	for policy, want := range cases {
		if got := policy.String(); got != want {
			t.Errorf("policy %d: expected %q, got %q", policy, want, got)
		}
	}
}
