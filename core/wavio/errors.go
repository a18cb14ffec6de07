package wavio

import "errors"

var (
	ErrNotWavFile          = errors.New("not a WAV file")
	ErrNoFmtChunk          = errors.New("fmt chunk not found")
	ErrNoDataChunk         = errors.New("data chunk not found")
	ErrNotPCM              = errors.New("not linear PCM")
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	ErrSegmentOutOfRange   = errors.New("segment index out of range")
	ErrFrameCountMismatch  = errors.New("sample count does not match segment window")
)
