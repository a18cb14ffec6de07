package wavio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
)

// Encode writes buf as a complete standalone WAV: canonical 44-byte header
// followed by little-endian PCM at the buffer's source bit depth. It only
// needs an io.Writer, so it can stream straight into an HTTP response.
func Encode(w io.Writer, buf *audio.IntBuffer) error {
	if buf == nil || buf.Format == nil {
		return ErrNotWavFile
	}
	bits := buf.SourceBitDepth
	switch bits {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d bits", ErrUnsupportedBitDepth, bits)
	}
	channels := uint16(buf.Format.NumChannels)
	sampleRate := uint32(buf.Format.SampleRate)
	bytesPerSample := uint16(bits / 8)
	blockAlign := channels * bytesPerSample
	byteRate := sampleRate * uint32(blockAlign)
	dataSize := uint32(len(buf.Data)) * uint32(bytesPerSample)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // linear PCM
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], sampleRate)
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], uint16(bits))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write WAV header: %w", err)
	}
	raw, err := encodeSamples(buf.Data, bits)
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write PCM data: %w", err)
	}
	return nil
}

// EncodedSize returns the total byte size Encode will produce for a buffer,
// handy for Content-Length headers.
func EncodedSize(buf *audio.IntBuffer) int {
	return 44 + len(buf.Data)*buf.SourceBitDepth/8
}
