package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stimm-ai/turn-orchestrator/pkg/orchestrator"
	llmProvider "github.com/stimm-ai/turn-orchestrator/pkg/providers/llm"
	sttProvider "github.com/stimm-ai/turn-orchestrator/pkg/providers/stt"
	ttsProvider "github.com/stimm-ai/turn-orchestrator/pkg/providers/tts"
	"go.opentelemetry.io/otel"
)

const (
	SampleRate = 16000
	Channels   = 1
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	googleKey := os.Getenv("GOOGLE_API_KEY")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	lokutorKey := os.Getenv("LOKUTOR_API_KEY")

	llmProviderName := os.Getenv("LLM_PROVIDER")
	if llmProviderName == "" {
		llmProviderName = "groq"
	}

	lang := orchestrator.Language(os.Getenv("AGENT_LANGUAGE"))
	if lang == "" {
		lang = orchestrator.LanguageEs
	}

	if lokutorKey == "" {
		log.Fatal("Error: LOKUTOR_API_KEY must be set.")
	}
	if deepgramKey == "" {
		log.Fatal("Error: DEEPGRAM_API_KEY must be set (the agent's full-duplex Ingress needs a streaming STT provider).")
	}

	stt := sttProvider.NewDeepgramStreamingSTT(deepgramKey)

	var llm orchestrator.LLMProvider
	switch llmProviderName {
	case "openai":
		if openaiKey == "" {
			log.Fatal("Error: OPENAI_API_KEY must be set for openai LLM")
		}
		llm = llmProvider.NewOpenAILLM(openaiKey, "gpt-4o")
	case "anthropic":
		if anthropicKey == "" {
			log.Fatal("Error: ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		llm = llmProvider.NewAnthropicLLM(anthropicKey, "claude-3-5-sonnet-20241022")
	case "google":
		if googleKey == "" {
			log.Fatal("Error: GOOGLE_API_KEY must be set for google LLM")
		}
		llm = llmProvider.NewGoogleLLM(googleKey, "gemini-1.5-flash")
	case "groq":
		fallthrough
	default:
		if groqKey == "" {
			log.Fatal("Error: GROQ_API_KEY must be set for groq LLM")
		}
		llm = llmProvider.NewGroqLLM(groqKey, "llama-3.3-70b-versatile")
	}

	fmt.Printf("Configured: STT=deepgram (streaming) | LLM=%s | TTS=Lokutor\n", llmProviderName)
	fmt.Printf("Sample Rate: %dHz | Language: %s\n", SampleRate, lang)
	fmt.Println("Voice Agent Started! Listening to microphone...")
	fmt.Println("Press Ctrl+C to exit")

	tts := ttsProvider.NewLokutorTTS(lokutorKey)

	systemPrompt := "You are a helpful and concise voice assistant. Use short sentences suitable for speech."
	if lang == orchestrator.LanguageEs {
		systemPrompt = "Eres un asistente de voz útil y conciso. Usa frases cortas adecuadas para el habla."
	}

	cfg := orchestrator.DefaultAgentConfig()
	cfg.Language = lang
	cfg.SystemPrompt = systemPrompt

	sessCfg := orchestrator.DefaultSessionConfig()
	sessCfg.SampleRate = SampleRate
	sessCfg.Channels = Channels

	session := orchestrator.NewSession("user_123", "local-agent", cfg, sessCfg)
	session.VAD = orchestrator.NewRMSVAD(0.02, 500*time.Millisecond)
	session.STT = stt
	session.LLM = llm
	session.TTS = tts

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		defer redisClient.Close()
		session.Cache = orchestrator.NewRedisRetrievalCache(redisClient, sessCfg.RetrievalCacheTTL)
		fmt.Printf("Retrieval cache: redis @ %s\n", redisAddr)
	}

	meterProvider, err := orchestrator.NewPrometheusMeterProvider()
	if err != nil {
		log.Fatalf("failed to set up metrics: %v", err)
	}
	otel.SetMeterProvider(meterProvider)
	defer meterProvider.Shutdown(context.Background())

	telemetry, err := orchestrator.NewTelemetry(meterProvider.Meter("turnengine"))
	if err != nil {
		log.Fatalf("failed to build telemetry: %v", err)
	}

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()
	fmt.Printf("Metrics: http://localhost%s/metrics\n", metricsAddr)

	egress := orchestrator.NewChannelEgress(1024)
	controller := orchestrator.NewController(session, egress, telemetry)
	defer controller.Close()

	// 2. Setup Audio Engine (malgo)
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	var playbackMu sync.Mutex
	var playbackBytes []byte

	var rmsMu sync.Mutex
	lastRMS := 0.0

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			var sum float64
			for i := 0; i < len(pInput)-1; i += 2 {
				sample := int16(pInput[i]) | (int16(pInput[i+1]) << 8)
				f := float64(sample) / 32768.0
				sum += f * f
			}
			rms := math.Sqrt(sum / float64(len(pInput)/2))
			rmsMu.Lock()
			lastRMS = rms
			rmsMu.Unlock()

			_ = controller.WriteAudio(pInput)
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			played := make([]byte, n)
			copy(played, pOutput[:n])
			playbackMu.Unlock()

			if n < len(pOutput) {
				for i := n; i < len(pOutput); i++ {
					pOutput[i] = 0
				}
			}
			if n > 0 {
				controller.NotifyAudioPlayed(played)
			}
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = Channels
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = Channels
	deviceConfig.SampleRate = SampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			rmsMu.Lock()
			level := lastRMS
			rmsMu.Unlock()

			meter := ""
			dots := int(level * 500)
			if dots > 40 {
				dots = 40
			}
			for i := 0; i < dots; i++ {
				meter += "|"
			}
			fmt.Printf("\r[MIC ENERGY: %-40s] RMS: %.5f", meter, level)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	go func() {
		for msg := range egress.Messages() {
			switch msg.Type {
			case orchestrator.MsgSpeechStart:
				fmt.Printf("\r\033[K[USER] Speaking...\n")
			case orchestrator.MsgSpeechEnd:
				fmt.Printf("\r\033[K[STT] Processing...\n")
			case orchestrator.MsgTranscriptUpdate:
				if msg.IsFinal {
					fmt.Printf("\r\033[K[TRANSCRIPT] %s\n", msg.Text)
				}
			case orchestrator.MsgBotRespondingStart:
				fmt.Printf("\r\033[K[LLM] Thinking...\n")
			case orchestrator.MsgAudioChunk:
				playbackMu.Lock()
				playbackBytes = append(playbackBytes, msg.Audio...)
				playbackMu.Unlock()
			case orchestrator.MsgInterrupt:
				fmt.Printf("\r\033[K[INTERRUPTED] User started talking.\n")
				playbackMu.Lock()
				playbackBytes = nil
				playbackMu.Unlock()
			case orchestrator.MsgError:
				fmt.Printf("\r\033[K[ERROR] %s\n", msg.Err)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Printf("\nShutting down...\n")
}
