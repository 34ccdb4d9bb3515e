package orchestrator

import (
	"math"
	"sync"
	"time"
)

// RMSVAD is a Root Mean Square based Voice Activity Detector. It's the
// engine's lightweight, no-dependency default VADGate: no library in
// the pack offers a pure-Go VAD, so this stays hand-rolled by design
// rather than as a stopgap.
type RMSVAD struct {
	mu sync.Mutex

	threshold    float64
	hangover     time.Duration
	minConfirmed int

	triggered    bool
	consecutive  int
	silenceStart time.Time
	lastRMS      float64
	probability  float64
}

// NewRMSVAD creates a new RMS-based VAD. hangover is how long the
// signal must stay below threshold before a speech_end fires.
func NewRMSVAD(threshold float64, hangover time.Duration) *RMSVAD {
	return &RMSVAD{
		threshold: threshold,
		hangover:  hangover,
		// ~70-100ms of continuous sound at 10ms frames before
		// confirming speech_start; filters spikes and echo-onset pops.
		minConfirmed: 7,
	}
}

func (v *RMSVAD) SetMinConfirmed(count int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.minConfirmed = count
}

func (v *RMSVAD) SetThreshold(threshold float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.threshold = threshold
}

func (v *RMSVAD) Threshold() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.threshold
}

func (v *RMSVAD) LastRMS() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastRMS
}

// Push feeds one frame of 16-bit little-endian PCM and returns zero or
// more transitions triggered by it.
func (v *RMSVAD) Push(frame []byte) ([]VADEvent, error) {
	rms := calculateRMS(frame)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.lastRMS = rms
	v.probability = clampProbability(rms / (v.threshold * 2))
	now := time.Now()

	if rms > v.threshold {
		v.consecutive++
		if !v.triggered {
			if v.consecutive >= v.minConfirmed {
				v.triggered = true
				return []VADEvent{{Type: VADSpeechStart, Probability: v.probability}}, nil
			}
			return nil, nil
		}
		v.silenceStart = time.Time{}
		return nil, nil
	}

	v.consecutive = 0
	if v.triggered {
		if v.silenceStart.IsZero() {
			v.silenceStart = now
		}
		if now.Sub(v.silenceStart) >= v.hangover {
			v.triggered = false
			v.silenceStart = time.Time{}
			return []VADEvent{{Type: VADSpeechEnd, Probability: v.probability}}, nil
		}
	}
	return nil, nil
}

func (v *RMSVAD) Triggered() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.triggered
}

func (v *RMSVAD) CurrentProbability() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.probability
}

func (v *RMSVAD) Name() string {
	return "rms_vad"
}

func (v *RMSVAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.triggered = false
	v.silenceStart = time.Time{}
	v.consecutive = 0
	v.probability = 0
}

func (v *RMSVAD) Clone() VADGate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &RMSVAD{
		threshold:    v.threshold,
		hangover:     v.hangover,
		minConfirmed: v.minConfirmed,
	}
}

func calculateRMS(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(chunk)-1; i += 2 {
		sample := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(chunk)/2))
}

func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
