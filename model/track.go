package model

import "time"

// TrackMetadata is the durable per-track decay record. One record exists for
// every WAV in the library; it is the only mutable state besides the audio
// bytes themselves.
type TrackMetadata struct {
	Filename          string    `json:"filename"`
	Title             string    `json:"title"`
	Duration          float64   `json:"duration"`     // Duration in seconds
	SampleRate        int       `json:"sample_rate"`  // Frames per second
	Channels          int       `json:"channels"`     // Interleaved channel count
	SampleWidth       int       `json:"sample_width"` // Bytes per sample (1, 2, 3 or 4)
	SegmentDuration   float64   `json:"segment_duration"`
	TotalSegments     int       `json:"total_segments"`
	SegmentPlayCounts []int64   `json:"segment_play_counts"`
	TotalStreams      int64     `json:"total_streams"`
	CreatedAt         time.Time `json:"created_at"`
}

// Clone returns a deep copy safe to hand out while the original keeps
// mutating under the repository's lock.
func (t *TrackMetadata) Clone() *TrackMetadata {
	c := *t
	c.SegmentPlayCounts = make([]int64, len(t.SegmentPlayCounts))
	copy(c.SegmentPlayCounts, t.SegmentPlayCounts)
	return &c
}

// TrackSummary is the listing shape returned by the /tracks endpoint.
type TrackSummary struct {
	Filename           string  `json:"filename"`
	Title              string  `json:"title"`
	Duration           float64 `json:"duration"`
	OverallDegradation float64 `json:"overall_degradation"`
	TotalStreams       int64   `json:"total_streams"`
	TotalChunks        int     `json:"total_chunks"`
}

// WaveformPoint is one bucket of the peak overview: the minimum and maximum
// normalized amplitude within that slice of the track.
type WaveformPoint struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
