package stt

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stimm-ai/turn-orchestrator/pkg/orchestrator"
)

// DeepgramStreamingSTT talks to Deepgram's realtime websocket endpoint.
// Each StreamTranscribe call dials its own connection; the most recent
// one is recorded in conn under a mutex, and none is reused.
type DeepgramStreamingSTT struct {
	apiKey string
	host   string
	scheme string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewDeepgramStreamingSTT(apiKey string) *DeepgramStreamingSTT {
	return &DeepgramStreamingSTT{
		apiKey: apiKey,
		host:   "api.deepgram.com",
		scheme: "wss",
	}
}

func (s *DeepgramStreamingSTT) Name() string {
	return "deepgram-stt-stream"
}

func (s *DeepgramStreamingSTT) dial(ctx context.Context, lang orchestrator.Language) (*websocket.Conn, error) {
	scheme := s.scheme
	if scheme == "" {
		scheme = "wss"
	}

	q := url.Values{}
	q.Set("model", "nova-2")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	if lang != "" {
		q.Set("language", string(lang))
	}

	u := url.URL{Scheme: scheme, Host: s.host, Path: "/v1/listen", RawQuery: q.Encode()}
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Token " + s.apiKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to deepgram: %w", err)
	}
	return conn, nil
}

// StreamTranscribe dials the realtime endpoint, returns a channel the
// caller feeds raw PCM frames into, and invokes onTranscript for every
// partial/final result the socket reports. The read loop runs on its
// own goroutine until ctx is cancelled or the connection drops.
func (s *DeepgramStreamingSTT) StreamTranscribe(ctx context.Context, lang orchestrator.Language, onTranscript func(orchestrator.Transcript) error) (chan<- []byte, error) {
	conn, err := s.dial(ctx, lang)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	audioIn := make(chan []byte, 32)

	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-audioIn:
				if !ok {
					wsjson.Write(ctx, conn, map[string]string{"type": "CloseStream"})
					return
				}
				if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		for {
			var msg struct {
				Channel struct {
					Alternatives []struct {
						Transcript string  `json:"transcript"`
						Confidence float64 `json:"confidence"`
					} `json:"alternatives"`
				} `json:"channel"`
				IsFinal bool `json:"is_final"`
			}
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			if err := onTranscript(orchestrator.Transcript{
				Text:       alt.Transcript,
				IsFinal:    msg.IsFinal,
				Confidence: alt.Confidence,
			}); err != nil {
				return
			}
		}
	}()

	return audioIn, nil
}
