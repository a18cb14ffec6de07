package decay_test

import (
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decayfm/core/decay"
)

func toneBuffer(frames, channels int) *audio.IntBuffer {
	data := make([]int, frames*channels)
	for i := range data {
		if i%2 == 0 {
			data[i] = 12000
		} else {
			data[i] = -12000
		}
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: 44100},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func zeroFraction(data []int) float64 {
	zeros := 0
	for _, v := range data {
		if v == 0 {
			zeros++
		}
	}
	return float64(zeros) / float64(len(data))
}

func TestIntensity(t *testing.T) {
	assert.Zero(t, decay.Intensity(0, 1.0))
	assert.InDelta(t, 0.05, decay.Intensity(1, 1.0), 1e-9)
	assert.InDelta(t, 0.5, decay.Intensity(10, 1.0), 1e-9)
	assert.Equal(t, 1.0, decay.Intensity(20, 1.0))
	assert.Equal(t, 1.0, decay.Intensity(500, 1.0), "intensity caps at total loss")
	assert.Equal(t, 1.0, decay.Intensity(10, 2.0), "rate doubles consumption speed")

	prev := 0.0
	for pc := int64(0); pc <= 40; pc++ {
		in := decay.Intensity(pc, 1.0)
		require.GreaterOrEqual(t, in, prev, "intensity must never decrease with play count")
		prev = in
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	engine := decay.NewEngine()
	a := toneBuffer(22050, 2)
	b := toneBuffer(22050, 2)

	engine.Apply(a, 3, 1.0)
	engine.Apply(b, 3, 1.0)
	assert.Equal(t, a.Data, b.Data, "identical inputs must produce identical damage")

	c := toneBuffer(22050, 2)
	engine.Apply(c, 4, 1.0)
	assert.NotEqual(t, a.Data, c.Data, "different play counts draw different damage")
}

func TestFirstPlayAlreadyCosts(t *testing.T) {
	engine := decay.NewEngine()
	buf := toneBuffer(22050, 1)
	engine.Apply(buf, 0, 1.0)
	assert.Greater(t, zeroFraction(buf.Data), 0.0, "the first listen must already destroy something")
}

func TestDamageAccumulatesMonotonically(t *testing.T) {
	engine := decay.NewEngine()
	buf := toneBuffer(22050, 2)

	prev := 0.0
	for play := int64(0); play < 25; play++ {
		engine.Apply(buf, play, 1.0)
		frac := zeroFraction(buf.Data)
		require.GreaterOrEqual(t, frac, prev, "zeroed fraction regressed at play %d", play)
		prev = frac
	}
	assert.Equal(t, 1.0, prev, "a segment played past saturation is silence")
}

func TestApplyNeverAmplifies(t *testing.T) {
	engine := decay.NewEngine()
	for _, playCount := range []int64{0, 5, 9, 12, 15, 19, 25} {
		buf := toneBuffer(8192, 2)
		before := make([]int, len(buf.Data))
		copy(before, buf.Data)

		engine.Apply(buf, playCount, 1.0)
		for i, v := range buf.Data {
			mag, orig := v, before[i]
			if mag < 0 {
				mag = -mag
			}
			if orig < 0 {
				orig = -orig
			}
			require.LessOrEqual(t, mag, orig, "sample %d grew at play count %d", i, playCount)
		}
	}
}

func TestZeroStaysZero(t *testing.T) {
	engine := decay.NewEngine()
	buf := toneBuffer(8192, 1)
	engine.Apply(buf, 10, 1.0)

	zeroed := make(map[int]bool)
	for i, v := range buf.Data {
		if v == 0 {
			zeroed[i] = true
		}
	}
	engine.Apply(buf, 11, 1.0)
	for i := range zeroed {
		require.Zero(t, buf.Data[i], "previously destroyed sample %d came back", i)
	}
}

func TestQuantizationPastHalfway(t *testing.T) {
	engine := decay.NewEngine()
	// Play count 12 at rate 1.0 lands at intensity 0.65: two bits shaved,
	// every surviving 16-bit sample becomes a multiple of 4.
	buf := toneBuffer(8192, 1)
	for i := range buf.Data {
		buf.Data[i] = 12001
	}
	engine.Apply(buf, 12, 1.0)
	for i, v := range buf.Data {
		require.Zero(t, v%4, "sample %d not quantized: %d", i, v)
	}
}

func TestSaturationIsTotalSilenceAndStable(t *testing.T) {
	engine := decay.NewEngine()
	buf := toneBuffer(4096, 2)
	engine.Apply(buf, 40, 1.0)
	assert.Equal(t, 1.0, zeroFraction(buf.Data))

	// Applying beyond saturation is a no-op on silence, never an error.
	engine.Apply(buf, 41, 1.0)
	assert.Equal(t, 1.0, zeroFraction(buf.Data))
}

func TestApplyHandlesDegenerateBuffers(t *testing.T) {
	engine := decay.NewEngine()
	engine.Apply(nil, 1, 1.0)
	engine.Apply(&audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: 8000}}, 1, 1.0)

	tiny := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           []int{5, -5},
		SourceBitDepth: 16,
	}
	engine.Apply(tiny, 3, 1.0)
	assert.Len(t, tiny.Data, 2)
}
