// Package library keeps the audio directory and the decay records in step:
// a startup scan registers every WAV, and an optional watcher picks up works
// dropped in while the server runs. Nothing here ever deletes a record; a
// file that vanishes is logged and left alone.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"decayfm/core/wavio"
	"decayfm/logger"
	"decayfm/model"
	"decayfm/repository"
	"decayfm/waveform"
)

// Scanner registers WAV files from the audio directory and pre-renders
// their waveform overviews.
type Scanner struct {
	audioDir  string
	codec     *wavio.Codec
	meta      repository.MetadataRepository
	waveforms *waveform.Generator
}

// NewScanner wires a scanner over audioDir.
func NewScanner(audioDir string, codec *wavio.Codec, meta repository.MetadataRepository, waveforms *waveform.Generator) *Scanner {
	return &Scanner{
		audioDir:  audioDir,
		codec:     codec,
		meta:      meta,
		waveforms: waveforms,
	}
}

// ScanResult summarises one pass over the library.
type ScanResult struct {
	Registered []string
	Known      int
	Skipped    int
}

// Scan walks the audio directory once, registering every playable WAV that
// has no decay record yet. Unreadable or unsupported files are logged and
// skipped; they never fail the scan.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	entries, err := os.ReadDir(s.audioDir)
	if err != nil {
		return nil, fmt.Errorf("read audio dir %s: %w", s.audioDir, err)
	}

	res := &ScanResult{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".wav") {
			continue
		}
		created, err := s.Register(ctx, name)
		switch {
		case err != nil:
			res.Skipped++
			logger.Warn("skipping file",
				logger.String("filename", name), logger.ErrorField(err))
		case created:
			res.Registered = append(res.Registered, name)
		default:
			res.Known++
		}
	}
	logger.Info("library scan complete",
		logger.Int("registered", len(res.Registered)),
		logger.Int("known", res.Known),
		logger.Int("skipped", res.Skipped),
	)
	return res, nil
}

// Register creates the decay record for one file if it does not exist yet
// and makes sure its waveform overview is cached. It reports whether a new
// record was created.
func (s *Scanner) Register(ctx context.Context, filename string) (bool, error) {
	path := filepath.Join(s.audioDir, filename)

	if _, err := s.meta.GetTrack(filename); err == nil {
		s.ensureWaveform(ctx, path, filename)
		return false, nil
	}

	info, err := s.codec.Probe(path)
	if err != nil {
		return false, err
	}
	meta := &model.TrackMetadata{
		Filename:        filename,
		Title:           titleFor(filename),
		Duration:        info.Duration(),
		SampleRate:      info.SampleRate,
		Channels:        info.Channels,
		SampleWidth:     info.BytesPerSample(),
		SegmentDuration: s.codec.SegmentDuration(),
		TotalSegments:   s.codec.TotalSegments(info),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.meta.CreateTrack(ctx, meta); err != nil {
		return false, err
	}
	s.ensureWaveform(ctx, path, filename)

	logger.Info("track registered",
		logger.String("filename", filename),
		logger.Float64("duration", meta.Duration),
		logger.Int("segments", meta.TotalSegments),
	)
	return true, nil
}

// RefreshWaveforms re-renders every cached overview from the audio's
// current, possibly decayed, state. Offline maintenance only.
func (s *Scanner) RefreshWaveforms(ctx context.Context) error {
	for _, meta := range s.meta.AllTracks() {
		path := filepath.Join(s.audioDir, meta.Filename)
		if _, err := s.waveforms.Refresh(ctx, path, meta.Filename); err != nil {
			return fmt.Errorf("refresh waveform for %s: %w", meta.Filename, err)
		}
	}
	return nil
}

func (s *Scanner) ensureWaveform(ctx context.Context, path, filename string) {
	if _, err := s.waveforms.Get(ctx, path, filename); err != nil {
		logger.Warn("waveform render failed",
			logger.String("filename", filename), logger.ErrorField(err))
	}
}

func titleFor(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
