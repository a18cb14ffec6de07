// Package waveform renders the fixed-resolution peak overview shown beside
// each track. Overviews are cached as blobs at scan time and deliberately
// never refreshed by plays: the display keeps showing what the piece was
// while the audio underneath it wears away.
package waveform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	gowav "github.com/go-audio/wav"

	"decayfm/core/wavio"
	"decayfm/logger"
	"decayfm/model"
	"decayfm/storage"
)

const keyPrefix = "waveforms/"

// Points is the number of min/max buckets in an overview.
const Points = 1000

// Generator renders and caches per-track peak overviews.
type Generator struct {
	blobs  storage.BlobStore
	points int
}

// NewGenerator returns a generator caching into blobs.
func NewGenerator(blobs storage.BlobStore) *Generator {
	return &Generator{blobs: blobs, points: Points}
}

func cacheKey(filename string) string {
	return keyPrefix + filename + ".json"
}

// Get returns the overview for filename, serving the cached snapshot when
// one exists and rendering (then caching) it otherwise.
func (g *Generator) Get(ctx context.Context, path, filename string) ([]model.WaveformPoint, error) {
	if data, err := g.blobs.Get(ctx, cacheKey(filename)); err == nil {
		var points []model.WaveformPoint
		if err := json.Unmarshal(data, &points); err == nil {
			return points, nil
		}
		logger.Warn("discarding corrupt waveform cache", logger.String("filename", filename))
	}
	return g.Refresh(ctx, path, filename)
}

// Refresh renders the overview from the file's current bytes and replaces
// the cached snapshot. Used at scan time and by offline maintenance.
func (g *Generator) Refresh(ctx context.Context, path, filename string) ([]model.WaveformPoint, error) {
	points, err := g.render(path)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("marshal waveform for %s: %w", filename, err)
	}
	if err := g.blobs.Put(ctx, cacheKey(filename), data, "application/json"); err != nil {
		return nil, fmt.Errorf("cache waveform for %s: %w", filename, err)
	}
	return points, nil
}

// render decodes the whole file and folds the mono mix into fixed min/max
// buckets normalised to [-1, 1].
func (g *Generator) render(path string) ([]model.WaveformPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d := gowav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, wavio.ErrNotWavFile)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	points := make([]model.WaveformPoint, g.points)
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return points, nil
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(buf.Data) / channels
	if frames == 0 {
		return points, nil
	}
	bits := buf.SourceBitDepth
	if bits <= 0 {
		bits = int(d.BitDepth)
	}
	// 8-bit WAV decodes as unsigned; everything else is already centred.
	offset := 0.0
	if bits == 8 {
		offset = 128
	}
	scale := float64(int64(1) << (bits - 1))

	for p := 0; p < g.points; p++ {
		lo := p * frames / g.points
		hi := (p + 1) * frames / g.points
		if hi <= lo {
			hi = lo + 1
		}
		if hi > frames {
			hi = frames
		}
		var min, max float64
		first := true
		for fr := lo; fr < hi; fr++ {
			sum := 0
			base := fr * channels
			for ch := 0; ch < channels; ch++ {
				sum += buf.Data[base+ch]
			}
			v := (float64(sum)/float64(channels) - offset) / scale
			if first {
				min, max = v, v
				first = false
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		points[p] = model.WaveformPoint{Min: min, Max: max}
	}
	return points, nil
}
