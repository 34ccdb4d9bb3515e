package orchestrator

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// EchoSuppressor detects and filters speaker echo out of microphone
// input using correlation-based analysis against a rolling buffer of
// recently played-out audio. Ported from the teacher's
// echo_suppression.go; parameterized by sample rate and exposed
// through Clean/RecordPlayback so Ingress can wire it in without
// knowing the correlation internals.
type EchoSuppressor struct {
	mu             sync.Mutex
	sampleRate     int
	playedAudioBuf *bytes.Buffer
	maxBufSize     int
	echoThreshold  float64
	echoSilenceMS  int
	lastPlaybackAt time.Time
	enabled        bool
}

// NewEchoSuppressor creates a suppressor tuned for 16-bit mono PCM at
// sampleRate. windowSeconds controls how much recent playback is kept
// for correlation (2s is the teacher's default at 44.1kHz).
func NewEchoSuppressor(sampleRate int, windowSeconds float64) *EchoSuppressor {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if windowSeconds <= 0 {
		windowSeconds = 2.0
	}
	return &EchoSuppressor{
		sampleRate:     sampleRate,
		playedAudioBuf: new(bytes.Buffer),
		maxBufSize:     int(float64(sampleRate) * 2 * windowSeconds),
		echoThreshold:  0.55,
		echoSilenceMS:  1200,
		enabled:        true,
	}
}

// RecordPlayback records audio that was just sent to the TTS output
// device, so later microphone frames can be checked against it.
func (es *EchoSuppressor) RecordPlayback(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	if !es.enabled {
		return
	}

	es.playedAudioBuf.Write(chunk)
	es.lastPlaybackAt = time.Now()

	if es.playedAudioBuf.Len() > es.maxBufSize {
		data := es.playedAudioBuf.Bytes()
		trim := data[len(data)-es.maxBufSize:]
		es.playedAudioBuf.Reset()
		es.playedAudioBuf.Write(trim)
	}
}

// IsEcho reports whether inputChunk correlates highly enough with
// recently played audio to be considered echo rather than live speech.
func (es *EchoSuppressor) IsEcho(inputChunk []byte) bool {
	if len(inputChunk) == 0 {
		return false
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	if !es.enabled {
		return false
	}

	if time.Since(es.lastPlaybackAt) > time.Duration(es.echoSilenceMS)*time.Millisecond {
		return false
	}

	playedData := es.playedAudioBuf.Bytes()
	if len(playedData) == 0 {
		return false
	}

	correlation := es.calculateCorrelation(inputChunk, playedData)
	if correlation > es.echoThreshold {
		return true
	}

	envCorr := maxEnvelopeCorrelation(bytesToSamples(inputChunk), bytesToSamples(playedData), 8)
	return envCorr > es.echoThreshold+0.05
}

// Clean returns inputChunk with any detected echo segment muted. It
// is the method Ingress calls on every incoming frame before handing
// it to the VAD gate and STT queue.
func (es *EchoSuppressor) Clean(inputChunk []byte) []byte {
	return es.RemoveEchoRealtime(inputChunk)
}

func (es *EchoSuppressor) calculateCorrelation(input, reference []byte) float64 {
	if len(input) == 0 || len(reference) == 0 {
		return 0
	}

	inputSamples := bytesToSamples(input)
	refSamples := bytesToSamples(reference)
	if len(inputSamples) == 0 || len(refSamples) == 0 {
		return 0
	}

	compareLen := len(inputSamples)
	if compareLen > len(refSamples) {
		compareLen = len(refSamples)
	}

	refStart := len(refSamples) - compareLen
	refCompare := refSamples[refStart:]

	inputEnergy := calculateEnergy(inputSamples)
	refCompareEnergy := calculateEnergy(refCompare)
	if inputEnergy == 0 || refCompareEnergy == 0 {
		return 0
	}

	correlation := 0.0
	for i := 0; i < len(inputSamples) && i < len(refCompare); i++ {
		correlation += inputSamples[i] * refCompare[i]
	}

	normFactor := math.Sqrt(inputEnergy * refCompareEnergy)
	if normFactor == 0 {
		return 0
	}
	normalizedCorr := correlation / normFactor
	if normalizedCorr < 0 {
		normalizedCorr = 0
	} else if normalizedCorr > 1 {
		normalizedCorr = 1
	}
	return normalizedCorr
}

func bytesToSamples(data []byte) []float64 {
	samples := make([]float64, 0, len(data)/2)
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | (int16(data[i+1]) << 8)
		samples = append(samples, float64(sample)/32768.0)
	}
	return samples
}

func calculateEnergy(samples []float64) float64 {
	energy := 0.0
	for _, s := range samples {
		energy += s * s
	}
	return energy
}

// ClearEchoBuffer discards buffered playback audio. Call when
// interrupting TTS so the next barge-in check doesn't correlate
// against audio that's already been cancelled.
func (es *EchoSuppressor) ClearEchoBuffer() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.playedAudioBuf.Reset()
}

// PostProcess runs offline echo removal over input (16-bit
// little-endian mono at the suppressor's configured sample rate),
// muting 20ms frames that correlate highly with buffered playback.
// Conservative: mutes whole frames rather than subtracting. Intended
// for debugging/inspection, not the realtime path.
func (es *EchoSuppressor) PostProcess(input []byte) []byte {
	es.mu.Lock()
	enabled := es.enabled
	sampleRate := es.sampleRate
	ref := make([]byte, es.playedAudioBuf.Len())
	copy(ref, es.playedAudioBuf.Bytes())
	threshold := es.echoThreshold
	es.mu.Unlock()

	out := make([]byte, len(input))
	copy(out, input)
	if !enabled || len(input) == 0 {
		return out
	}

	const frameMs = 20
	frameBytes := (sampleRate * 2 * frameMs) / 1000

	for off := 0; off < len(input); off += frameBytes {
		end := off + frameBytes
		if end > len(input) {
			end = len(input)
		}
		frame := input[off:end]
		if es.maxCorrelationAgainstReference(frame, ref) > threshold {
			for i := off; i < end; i++ {
				out[i] = 0
			}
		}
	}
	return out
}

// RemoveEchoRealtime attempts to mute a segment of input that aligns
// with recently played audio, in real time. This is a single-scale
// detect-and-mute, not a full adaptive AEC.
func (es *EchoSuppressor) RemoveEchoRealtime(input []byte) []byte {
	passthrough := func() []byte {
		out := make([]byte, len(input))
		copy(out, input)
		return out
	}
	if len(input) == 0 {
		return passthrough()
	}

	es.mu.Lock()
	enabled := es.enabled
	stale := time.Since(es.lastPlaybackAt) > time.Duration(es.echoSilenceMS)*time.Millisecond
	ref := make([]byte, es.playedAudioBuf.Len())
	copy(ref, es.playedAudioBuf.Bytes())
	threshold := es.echoThreshold
	es.mu.Unlock()

	if !enabled || stale || len(ref) == 0 {
		return passthrough()
	}

	inSamples := bytesToSamples(input)
	refSamples := bytesToSamples(ref)
	if len(inSamples) == 0 || len(refSamples) == 0 {
		return passthrough()
	}

	compareLen := len(inSamples)
	if compareLen > len(refSamples) {
		compareLen = len(refSamples)
	}

	inSeg := inSamples[:compareLen]
	inEnergy := calculateEnergy(inSeg)
	if inEnergy == 0 {
		return passthrough()
	}

	maxCorr := 0.0
	// Large stride to keep this cheap enough for the realtime audio
	// thread; PostProcess's offline search uses the same stride.
	stride := compareLen / 4
	if stride < 8 {
		stride = 8
	}

	searchRange := len(refSamples) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		seg := refSamples[pos : pos+compareLen]
		segEnergy := calculateEnergy(seg)
		if segEnergy == 0 {
			continue
		}
		dot := 0.0
		for i := 0; i < compareLen; i++ {
			dot += inSeg[i] * seg[i]
		}
		corr := dot / math.Sqrt(inEnergy*segEnergy)
		if corr > maxCorr {
			maxCorr = corr
			if maxCorr >= 0.999 {
				break
			}
		}
	}

	if maxCorr < threshold {
		envCorr := maxEnvelopeCorrelation(inSeg, refSamples, 8)
		if envCorr < threshold+0.05 {
			return passthrough()
		}
	}

	outBytes := make([]byte, len(input))
	if len(outBytes) > compareLen*2 {
		copy(outBytes[compareLen*2:], input[compareLen*2:])
	}
	return outBytes
}

// maxCorrelationAgainstReference performs a bounded sliding-window
// search of reference for the best normalized correlation with input.
// It uses the same stride as RemoveEchoRealtime's inline search and
// clamps the result to [0, 1]; PostProcess calls it per frame.
func (es *EchoSuppressor) maxCorrelationAgainstReference(input, reference []byte) float64 {
	inputSamples := bytesToSamples(input)
	refSamples := bytesToSamples(reference)
	if len(inputSamples) == 0 || len(refSamples) == 0 {
		return 0
	}

	compareLen := len(inputSamples)
	if compareLen > len(refSamples) {
		compareLen = len(refSamples)
	}

	inputEnergy := calculateEnergy(inputSamples[:compareLen])
	if inputEnergy == 0 {
		return 0
	}

	maxCorr := 0.0
	stride := compareLen / 4
	if stride < 8 {
		stride = 8
	}

	searchRange := len(refSamples) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		seg := refSamples[pos : pos+compareLen]
		segEnergy := calculateEnergy(seg)
		if segEnergy == 0 {
			continue
		}
		dot := 0.0
		for i := 0; i < compareLen; i++ {
			dot += inputSamples[i] * seg[i]
		}
		corr := dot / math.Sqrt(inputEnergy*segEnergy)
		if corr > maxCorr {
			maxCorr = corr
			if maxCorr >= 0.999 {
				return maxCorr
			}
		}
	}

	if maxCorr < 0 {
		maxCorr = 0
	} else if maxCorr > 1 {
		maxCorr = 1
	}
	return maxCorr
}

// maxEnvelopeCorrelation compares the absolute-value energy envelope
// (downsampled by decimation) of the two signals instead of the raw
// waveform, which catches phase-shifted sibilants ('S' sounds) that
// raw cross-correlation misses.
func maxEnvelopeCorrelation(inSamples, refSamples []float64, decimation int) float64 {
	if len(inSamples) == 0 || len(refSamples) == 0 {
		return 0
	}

	inEnv := make([]float64, len(inSamples)/decimation)
	for i := 0; i < len(inEnv); i++ {
		sum := 0.0
		for j := 0; j < decimation; j++ {
			sum += math.Abs(inSamples[i*decimation+j])
		}
		inEnv[i] = sum
	}

	refEnv := make([]float64, len(refSamples)/decimation)
	for i := 0; i < len(refEnv); i++ {
		sum := 0.0
		for j := 0; j < decimation; j++ {
			sum += math.Abs(refSamples[i*decimation+j])
		}
		refEnv[i] = sum
	}

	compareLen := len(inEnv)
	if compareLen > len(refEnv) {
		compareLen = len(refEnv)
	}
	if compareLen == 0 {
		return 0
	}

	inMean := 0.0
	for i := 0; i < compareLen; i++ {
		inMean += inEnv[i]
	}
	inMean /= float64(compareLen)

	inVar := 0.0
	for i := 0; i < compareLen; i++ {
		inEnv[i] -= inMean
		inVar += inEnv[i] * inEnv[i]
	}
	if inVar <= 0 {
		return 0
	}

	maxCorr := 0.0
	stride := compareLen / 4
	if stride < 2 {
		stride = 2
	}

	searchRange := len(refEnv) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		refMean := 0.0
		for i := 0; i < compareLen; i++ {
			refMean += refEnv[pos+i]
		}
		refMean /= float64(compareLen)

		dot := 0.0
		refVar := 0.0
		for i := 0; i < compareLen; i++ {
			r := refEnv[pos+i] - refMean
			dot += inEnv[i] * r
			refVar += r * r
		}
		if refVar > 0 {
			corr := dot / math.Sqrt(inVar*refVar)
			if corr > maxCorr {
				maxCorr = corr
			}
		}
	}
	return maxCorr
}

// SetThreshold adjusts echo-detection sensitivity (0-1, higher = less
// sensitive: a frame must correlate more strongly to count as echo).
func (es *EchoSuppressor) SetThreshold(threshold float64) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if threshold >= 0 && threshold <= 1 {
		es.echoThreshold = threshold
	}
}

// SetEnabled turns echo suppression on or off.
func (es *EchoSuppressor) SetEnabled(enabled bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.enabled = enabled
}
