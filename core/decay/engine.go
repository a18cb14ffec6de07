// Package decay implements the irreversible audio degradation transform.
// Each play of a segment zeroes short pseudo-random bursts of samples and,
// past the halfway point, crushes what survives. Damage only ever
// accumulates; there is no inverse.
package decay

import (
	"math"
	"math/rand"

	"github.com/go-audio/audio"
)

// IntensityStep is the fraction of a segment one play consumes at rate 1.0.
// Twenty plays exhaust a segment completely.
const IntensityStep = 0.05

const quantizeThreshold = 0.5

// Intensity maps a play count and rate to degradation intensity in [0, 1].
// It is shared by the transform and by the stats endpoints so reported
// percentages always agree with what the engine actually does.
func Intensity(playCount int64, rate float64) float64 {
	in := float64(playCount) * rate * IntensityStep
	if in >= 1 {
		return 1
	}
	if in <= 0 {
		return 0
	}
	return in
}

// Engine applies decay to segment buffers. It holds only tuning constants
// and is safe for concurrent use.
type Engine struct {
	minBurstMs float64
	maxBurstMs float64
}

// NewEngine returns an engine with the standard burst tuning: dropouts of
// 2-10 ms, long enough to be heard as crackle rather than single-sample
// clicks.
func NewEngine() *Engine {
	return &Engine{minBurstMs: 2, maxBurstMs: 10}
}

// Apply degrades buf in place for its next play. playCount is the number of
// completed plays before this one. The transform is deterministic in
// (samples, playCount, rate): the damage pattern is drawn from a generator
// seeded only by those inputs. No sample ever grows in magnitude and a
// zeroed sample stays zero, so repeated application converges on silence.
func (e *Engine) Apply(buf *audio.IntBuffer, playCount int64, rate float64) {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return
	}
	intensity := Intensity(playCount+1, rate)
	if intensity <= 0 {
		return
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(buf.Data) / channels
	if frames == 0 {
		return
	}
	if intensity >= 1 {
		for i := range buf.Data {
			buf.Data[i] = 0
		}
		return
	}

	rng := rand.New(rand.NewSource(seedFor(playCount, rate)))

	sampleRate := buf.Format.SampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	minBurst := burstFrames(e.minBurstMs, sampleRate)
	maxBurst := burstFrames(e.maxBurstMs, sampleRate)
	if maxBurst > frames {
		maxBurst = frames
	}
	if minBurst > maxBurst {
		minBurst = maxBurst
	}

	targetFrames := int(intensity * float64(frames))
	avg := (minBurst + maxBurst) / 2
	if avg < 1 {
		avg = 1
	}
	bursts := targetFrames/avg + 1
	for b := 0; b < bursts; b++ {
		start := rng.Intn(frames)
		length := minBurst
		if maxBurst > minBurst {
			length += rng.Intn(maxBurst - minBurst + 1)
		}
		end := start + length
		if end > frames {
			end = frames
		}
		for f := start; f < end; f++ {
			base := f * channels
			for ch := 0; ch < channels; ch++ {
				buf.Data[base+ch] = 0
			}
		}
	}

	if intensity > quantizeThreshold {
		quantize(buf, intensity)
	}
}

// quantize shaves low bits off surviving samples once a segment is past half
// gone. Truncation rounds toward zero, so magnitudes only shrink.
func quantize(buf *audio.IntBuffer, intensity float64) {
	bits := buf.SourceBitDepth
	if bits <= 0 {
		bits = 16
	}
	shave := int((intensity - quantizeThreshold) / (1 - quantizeThreshold) * float64(bits) / 2)
	if shave < 1 {
		return
	}
	step := 1 << shave
	for i, v := range buf.Data {
		buf.Data[i] = v - v%step
	}
}

func burstFrames(ms float64, sampleRate int) int {
	n := int(math.Round(ms * float64(sampleRate) / 1000))
	if n < 1 {
		return 1
	}
	return n
}

// seedFor derives the damage pattern seed from the documented inputs and
// nothing else. Identical inputs always draw identical bursts.
func seedFor(playCount int64, rate float64) int64 {
	return playCount*1000003 ^ int64(math.Round(rate*1e6))*7919
}
