package wavio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
)

// Codec reads and writes fixed-duration segment windows of WAV files in
// place. A segment is addressed purely by index; the codec turns that into an
// exact byte range inside the data chunk and never touches anything outside
// it. The header, trailing chunks and every other segment stay byte
// identical across a write.
type Codec struct {
	segmentDuration float64
}

// NewCodec returns a codec with the given segment duration in seconds.
func NewCodec(segmentDuration float64) *Codec {
	return &Codec{segmentDuration: segmentDuration}
}

// SegmentDuration returns the configured segment length in seconds.
func (c *Codec) SegmentDuration() float64 { return c.segmentDuration }

// TotalSegments returns how many decay segments the file holds. The final
// segment may cover less than a full segmentDuration.
func (c *Codec) TotalSegments(info *Info) int {
	if c.segmentDuration <= 0 {
		return 0
	}
	return int(math.Ceil(info.Duration() / c.segmentDuration))
}

// TotalWindows is TotalSegments for an arbitrary window duration, used for
// the fixed-length streaming chunks.
func TotalWindows(info *Info, duration float64) int {
	if duration <= 0 {
		return 0
	}
	return int(math.Ceil(info.Duration() / duration))
}

// window computes the frame range [start, start+count) of the index-th
// duration-sized window, clipped at the end of the audio.
func window(info *Info, index int, duration float64) (start, count int64, err error) {
	total := info.NumFrames()
	start = int64(math.Floor(float64(index) * duration * float64(info.SampleRate)))
	count = int64(math.Round(duration * float64(info.SampleRate)))
	if index < 0 || start >= total || count <= 0 {
		return 0, 0, fmt.Errorf("%w: index %d", ErrSegmentOutOfRange, index)
	}
	if start+count > total {
		count = total - start
	}
	return start, count, nil
}

// Probe opens path and returns its PCM layout.
func (c *Codec) Probe(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := ReadInfo(f)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return info, nil
}

// ReadSegment returns the samples of one decay segment. The returned buffer
// is interleaved, centred on zero, SourceBitDepth set from the file.
func (c *Codec) ReadSegment(path string, index int) (*audio.IntBuffer, error) {
	return c.readWindow(path, index, c.segmentDuration)
}

// ReadChunk returns the samples of one fixed-duration streaming chunk.
// Chunk windows are independent of the decay segment grid.
func (c *Codec) ReadChunk(path string, index int, chunkDuration float64) (*audio.IntBuffer, error) {
	return c.readWindow(path, index, chunkDuration)
}

func (c *Codec) readWindow(path string, index int, duration float64) (*audio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := ReadInfo(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	start, count, err := window(info, index, duration)
	if err != nil {
		return nil, err
	}

	frameSize := int64(info.FrameSize())
	raw := make([]byte, count*frameSize)
	if _, err := f.ReadAt(raw, info.DataOffset+start*frameSize); err != nil {
		return nil, fmt.Errorf("read window %d of %s: %w", index, path, err)
	}
	samples, err := decodeSamples(raw, info.BitsPerSample)
	if err != nil {
		return nil, err
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: info.Channels, SampleRate: info.SampleRate},
		Data:           samples,
		SourceBitDepth: info.BitsPerSample,
	}, nil
}

// WriteSegment replaces exactly the byte range of one decay segment with the
// buffer's samples. The buffer must hold precisely the segment's frame count;
// anything else is rejected before a single byte is written.
func (c *Codec) WriteSegment(path string, index int, buf *audio.IntBuffer) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := ReadInfo(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	start, count, err := window(info, index, c.segmentDuration)
	if err != nil {
		return err
	}
	if int64(len(buf.Data)) != count*int64(info.Channels) {
		return fmt.Errorf("%w: got %d samples, window holds %d", ErrFrameCountMismatch, len(buf.Data), count*int64(info.Channels))
	}

	raw, err := encodeSamples(buf.Data, info.BitsPerSample)
	if err != nil {
		return err
	}
	frameSize := int64(info.FrameSize())
	if _, err := f.WriteAt(raw, info.DataOffset+start*frameSize); err != nil {
		return fmt.Errorf("write window %d of %s: %w", index, path, err)
	}
	return nil
}
