package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"decayfm/core/decay"
	"decayfm/logger"
	"decayfm/model"
	"decayfm/storage"
)

const trackKeyPrefix = "tracks/"

var (
	// ErrTrackNotFound is returned for filenames with no decay record.
	ErrTrackNotFound = errors.New("track not found")
	// ErrSegmentOutOfRange is returned for segment indices outside a
	// track's record.
	ErrSegmentOutOfRange = errors.New("segment index out of range")
)

// MetadataRepository defines the interface for decay record operations.
// Reads are served from memory; every mutation persists the whole record
// atomically before it is acknowledged.
type MetadataRepository interface {
	CreateTrack(ctx context.Context, meta *model.TrackMetadata) error
	GetTrack(filename string) (*model.TrackMetadata, error)
	AllTracks() []*model.TrackMetadata
	IncrementSegmentPlayCount(ctx context.Context, filename string, segmentIndex int) (int64, error)
	IncrementTotalStreams(ctx context.Context, filename string) (int64, error)
	OverallDegradation(filename string, rate float64) (float64, error)
}

type trackRecord struct {
	mu   sync.Mutex
	meta *model.TrackMetadata
}

// blobMetadataRepository implements MetadataRepository over a BlobStore.
// The map lock guards only the lookup; each record carries its own mutex, so
// tracks never contend with each other.
type blobMetadataRepository struct {
	blobs  storage.BlobStore
	mu     sync.RWMutex
	tracks map[string]*trackRecord
}

// NewBlobMetadataRepository loads every stored record and returns the
// repository. Records that fail to parse are logged and skipped rather than
// taking the library down.
func NewBlobMetadataRepository(ctx context.Context, blobs storage.BlobStore) (MetadataRepository, error) {
	r := &blobMetadataRepository{
		blobs:  blobs,
		tracks: make(map[string]*trackRecord),
	}
	keys, err := blobs.List(ctx, trackKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list track records: %w", err)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := blobs.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load track record %s: %w", key, err)
		}
		meta := &model.TrackMetadata{}
		if err := json.Unmarshal(data, meta); err != nil {
			logger.Warn("skipping unreadable track record",
				logger.String("key", key), logger.ErrorField(err))
			continue
		}
		if meta.Filename == "" {
			continue
		}
		r.tracks[meta.Filename] = &trackRecord{meta: meta}
	}
	return r, nil
}

func trackKey(filename string) string {
	return trackKeyPrefix + filename + ".json"
}

func (r *blobMetadataRepository) record(filename string) (*trackRecord, error) {
	r.mu.RLock()
	rec, ok := r.tracks[filename]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, filename)
	}
	return rec, nil
}

func (r *blobMetadataRepository) persist(ctx context.Context, meta *model.TrackMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record for %s: %w", meta.Filename, err)
	}
	if err := r.blobs.Put(ctx, trackKey(meta.Filename), data, "application/json"); err != nil {
		return fmt.Errorf("failed to persist record for %s: %w", meta.Filename, err)
	}
	return nil
}

// CreateTrack registers a new track with a zeroed decay record and persists
// it. Registering the same filename twice is an error.
func (r *blobMetadataRepository) CreateTrack(ctx context.Context, meta *model.TrackMetadata) error {
	if meta == nil || meta.Filename == "" {
		return fmt.Errorf("track record needs a filename")
	}
	stored := meta.Clone()
	if len(stored.SegmentPlayCounts) != stored.TotalSegments {
		counts := make([]int64, stored.TotalSegments)
		copy(counts, stored.SegmentPlayCounts)
		stored.SegmentPlayCounts = counts
	}

	r.mu.Lock()
	if _, exists := r.tracks[stored.Filename]; exists {
		r.mu.Unlock()
		return fmt.Errorf("track %s already registered", stored.Filename)
	}
	rec := &trackRecord{meta: stored}
	r.tracks[stored.Filename] = rec
	r.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := r.persist(ctx, rec.meta); err != nil {
		r.mu.Lock()
		delete(r.tracks, stored.Filename)
		r.mu.Unlock()
		return err
	}
	return nil
}

// GetTrack returns a copy of the record for filename.
func (r *blobMetadataRepository) GetTrack(filename string) (*model.TrackMetadata, error) {
	rec, err := r.record(filename)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.meta.Clone(), nil
}

// AllTracks returns copies of every record, sorted by filename.
func (r *blobMetadataRepository) AllTracks() []*model.TrackMetadata {
	r.mu.RLock()
	recs := make([]*trackRecord, 0, len(r.tracks))
	for _, rec := range r.tracks {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]*model.TrackMetadata, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.meta.Clone())
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// IncrementSegmentPlayCount advances one segment's play count and persists
// the record. The count only moves when the record is durably written; on a
// failed write the in-memory state is rolled back so memory and disk agree.
func (r *blobMetadataRepository) IncrementSegmentPlayCount(ctx context.Context, filename string, segmentIndex int) (int64, error) {
	rec, err := r.record(filename)
	if err != nil {
		return 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if segmentIndex < 0 || segmentIndex >= len(rec.meta.SegmentPlayCounts) {
		return 0, fmt.Errorf("%w: %d of %d segments in %s",
			ErrSegmentOutOfRange, segmentIndex, len(rec.meta.SegmentPlayCounts), filename)
	}
	rec.meta.SegmentPlayCounts[segmentIndex]++
	if err := r.persist(ctx, rec.meta); err != nil {
		rec.meta.SegmentPlayCounts[segmentIndex]--
		return 0, err
	}
	return rec.meta.SegmentPlayCounts[segmentIndex], nil
}

// IncrementTotalStreams counts one full-track play.
func (r *blobMetadataRepository) IncrementTotalStreams(ctx context.Context, filename string) (int64, error) {
	rec, err := r.record(filename)
	if err != nil {
		return 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.meta.TotalStreams++
	if err := r.persist(ctx, rec.meta); err != nil {
		rec.meta.TotalStreams--
		return 0, err
	}
	return rec.meta.TotalStreams, nil
}

// OverallDegradation reports how consumed a track is as a percentage: the
// mean decay intensity across its segments. Computed on demand so it always
// agrees with the engine's formula.
func (r *blobMetadataRepository) OverallDegradation(filename string, rate float64) (float64, error) {
	rec, err := r.record(filename)
	if err != nil {
		return 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	counts := rec.meta.SegmentPlayCounts
	if len(counts) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, c := range counts {
		sum += decay.Intensity(c, rate)
	}
	return sum / float64(len(counts)) * 100, nil
}
