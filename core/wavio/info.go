package wavio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Info describes the PCM layout of a WAV file. DataOffset and DataSize locate
// the sample bytes exactly, so segment windows can be addressed without
// re-parsing anything else.
type Info struct {
	AudioFormat   uint16
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataOffset    int64
	DataSize      int64
}

// BytesPerSample returns the storage width of one sample.
func (i *Info) BytesPerSample() int { return i.BitsPerSample / 8 }

// FrameSize returns the byte width of one interleaved frame.
func (i *Info) FrameSize() int { return i.Channels * i.BytesPerSample() }

// NumFrames returns the total frame count of the data chunk.
func (i *Info) NumFrames() int64 {
	fs := int64(i.FrameSize())
	if fs == 0 {
		return 0
	}
	return i.DataSize / fs
}

// Duration returns the playable length in seconds.
func (i *Info) Duration() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.NumFrames()) / float64(i.SampleRate)
}

// ReadInfo walks the RIFF chunk list of r and returns the PCM layout.
// Chunks other than fmt and data (LIST, cue, bext, ...) are skipped and left
// alone. Non-PCM encodings and bit depths outside 8/16/24/32 are rejected.
func ReadInfo(r io.ReadSeeker) (*Info, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrNotWavFile
	}

	info := &Info{}
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrNoFmtChunk
			}
			var f [16]byte
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			info.AudioFormat = binary.LittleEndian.Uint16(f[0:2])
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			if size > 16 {
				if _, err := r.Seek(size-16, io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("skip fmt extension: %w", err)
				}
			}
			haveFmt = true
		case "data":
			off, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, fmt.Errorf("locate data chunk: %w", err)
			}
			info.DataOffset = off
			info.DataSize = size
			if _, err := r.Seek(size, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip data chunk: %w", err)
			}
		default:
			if _, err := r.Seek(size, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		// RIFF chunks are word aligned; odd sizes carry a pad byte.
		if size%2 == 1 {
			if _, err := r.Seek(1, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip pad byte: %w", err)
			}
		}
	}

	if !haveFmt {
		return nil, ErrNoFmtChunk
	}
	if info.DataOffset == 0 {
		return nil, ErrNoDataChunk
	}
	if info.AudioFormat != 1 {
		return nil, fmt.Errorf("%w: format tag %d", ErrNotPCM, info.AudioFormat)
	}
	switch info.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupportedBitDepth, info.BitsPerSample)
	}
	if info.Channels < 1 || info.SampleRate < 1 {
		return nil, ErrNotWavFile
	}

	// A data chunk that claims more bytes than the file holds would turn
	// every tail segment into a short read. Clamp to what is really there.
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("measure file: %w", err)
	}
	if info.DataOffset+info.DataSize > end {
		info.DataSize = end - info.DataOffset
	}
	return info, nil
}
