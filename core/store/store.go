// Package store orchestrates destructive plays. It is the only code path
// that modifies audio: validate, lock the segment, read, degrade, write the
// bytes back, then count the play. Everything it composes is handed in at
// construction; nothing here is global.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"

	"decayfm/core/decay"
	"decayfm/core/lock"
	"decayfm/core/wavio"
	"decayfm/logger"
	"decayfm/repository"
)

var (
	// ErrInvalidSegment is returned for segment indices a track does not have.
	ErrInvalidSegment = errors.New("invalid segment index")
	// ErrInvalidFilename is returned for names that are not plain base names.
	ErrInvalidFilename = errors.New("invalid filename")
)

// DegradingStore serves and consumes the audio library.
type DegradingStore struct {
	audioDir string
	codec    *wavio.Codec
	engine   *decay.Engine
	locks    *lock.Manager
	meta     repository.MetadataRepository
	rate     float64
}

// NewDegradingStore wires the degradation pipeline over audioDir.
func NewDegradingStore(audioDir string, codec *wavio.Codec, engine *decay.Engine, locks *lock.Manager, meta repository.MetadataRepository, rate float64) *DegradingStore {
	return &DegradingStore{
		audioDir: audioDir,
		codec:    codec,
		engine:   engine,
		locks:    locks,
		meta:     meta,
		rate:     rate,
	}
}

// DegradeResult reports one completed destructive play.
type DegradeResult struct {
	Filename     string
	SegmentIndex int
	PlayCount    int64   // play count after this play
	Degradation  float64 // overall track degradation percentage after this play
}

// TrackPath validates a client-supplied filename and resolves it inside the
// audio directory. Only plain base names are ever accepted; anything with a
// separator or a leading dot is rejected before touching the filesystem.
func (s *DegradingStore) TrackPath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) ||
		strings.HasPrefix(filename, ".") || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return filepath.Join(s.audioDir, filename), nil
}

// DegradeSegment performs one destructive play of a segment and returns the
// post-play state. Concurrent calls for the same segment serialise on the
// segment lock and each one damages the previous caller's result; calls for
// other segments or tracks are unaffected. The play count only advances
// after the degraded bytes are back on disk.
func (s *DegradingStore) DegradeSegment(ctx context.Context, filename string, segmentIndex int) (*DegradeResult, error) {
	start := time.Now()

	path, err := s.TrackPath(filename)
	if err != nil {
		return nil, err
	}
	meta, err := s.meta.GetTrack(filename)
	if err != nil {
		return nil, err
	}
	if segmentIndex < 0 || segmentIndex >= meta.TotalSegments {
		return nil, fmt.Errorf("%w: %d of %d in %s", ErrInvalidSegment, segmentIndex, meta.TotalSegments, filename)
	}

	l, err := s.locks.Acquire(ctx, filename, segmentIndex)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	// Re-read under the lock: a previous holder may have played this
	// segment while we waited.
	meta, err = s.meta.GetTrack(filename)
	if err != nil {
		return nil, err
	}
	playCount := meta.SegmentPlayCounts[segmentIndex]

	buf, err := s.codec.ReadSegment(path, segmentIndex)
	if err != nil {
		return nil, s.mapReadErr(err)
	}

	s.engine.Apply(buf, playCount, s.rate)

	if err := s.codec.WriteSegment(path, segmentIndex, buf); err != nil {
		return nil, fmt.Errorf("write degraded segment %d of %s: %w", segmentIndex, filename, err)
	}
	newCount, err := s.meta.IncrementSegmentPlayCount(ctx, filename, segmentIndex)
	if err != nil {
		// The audio damage is already permanent; only the count was lost.
		return nil, fmt.Errorf("segment %d of %s degraded but play not recorded: %w", segmentIndex, filename, err)
	}
	overall, err := s.meta.OverallDegradation(filename, s.rate)
	if err != nil {
		return nil, err
	}

	logger.Info("segment degraded",
		logger.String("filename", filename),
		logger.Int("segment", segmentIndex),
		logger.Int64("play_count", newCount),
		logger.Float64("degradation", overall),
		logger.Duration("elapsed", time.Since(start)),
	)
	return &DegradeResult{
		Filename:     filename,
		SegmentIndex: segmentIndex,
		PlayCount:    newCount,
		Degradation:  overall,
	}, nil
}

// ReadChunk returns one fixed-duration window of a track for streaming.
// It takes no segment lock: a chunk that overlaps an in-flight degrade may
// carry a mix of old and new bytes, and that audible seam is part of the
// piece.
func (s *DegradingStore) ReadChunk(filename string, chunkIndex int, chunkDuration float64) (*audio.IntBuffer, error) {
	path, err := s.TrackPath(filename)
	if err != nil {
		return nil, err
	}
	if _, err := s.meta.GetTrack(filename); err != nil {
		return nil, err
	}
	buf, err := s.codec.ReadChunk(path, chunkIndex, chunkDuration)
	if err != nil {
		return nil, s.mapReadErr(err)
	}
	return buf, nil
}

// CountStream records one full-track play.
func (s *DegradingStore) CountStream(ctx context.Context, filename string) (int64, error) {
	if _, err := s.TrackPath(filename); err != nil {
		return 0, err
	}
	return s.meta.IncrementTotalStreams(ctx, filename)
}

// Rate returns the configured degradation rate.
func (s *DegradingStore) Rate() float64 { return s.rate }

func (s *DegradingStore) mapReadErr(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: audio file is gone", repository.ErrTrackNotFound)
	}
	if errors.Is(err, wavio.ErrSegmentOutOfRange) {
		return fmt.Errorf("%w: %v", ErrInvalidSegment, err)
	}
	return err
}
