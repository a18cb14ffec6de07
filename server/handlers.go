package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"decayfm/config"
	"decayfm/core/events"
	"decayfm/core/lock"
	"decayfm/core/store"
	"decayfm/logger"
	"decayfm/model"
	"decayfm/repository"
	"decayfm/waveform"
)

// chunkDuration is the length in seconds of one standalone streaming chunk.
// Chunks are a delivery unit for progressive players and are unrelated to
// the decay segment size.
const chunkDuration = 5.0

// APIHandler carries the wired services every endpoint needs.
type APIHandler struct {
	store     *store.DegradingStore
	meta      repository.MetadataRepository
	waveforms *waveform.Generator
	locks     *lock.Manager
	hub       *events.Hub
	cfg       *config.Config
	started   time.Time
}

// NewAPIHandler creates the handler set.
func NewAPIHandler(
	st *store.DegradingStore,
	meta repository.MetadataRepository,
	waveforms *waveform.Generator,
	locks *lock.Manager,
	hub *events.Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		store:     st,
		meta:      meta,
		waveforms: waveforms,
		locks:     locks,
		hub:       hub,
		cfg:       cfg,
		started:   time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps service errors onto HTTP statuses in one place so
// every endpoint reports the same way.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "track not found")
	case errors.Is(err, store.ErrInvalidFilename):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidSegment),
		errors.Is(err, repository.ErrSegmentOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrTimeout):
		writeError(w, http.StatusServiceUnavailable, "segment is being played by another listener")
	default:
		logger.Error("request failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func totalChunks(duration float64) int {
	return int(math.Ceil(duration / chunkDuration))
}

// HealthHandler reports liveness plus a few cheap gauges.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"service":          "decayfm",
		"tracks":           len(h.meta.AllTracks()),
		"active_locks":     h.locks.Active(),
		"segment_duration": h.cfg.SegmentDuration,
		"degradation_rate": h.cfg.DegradationRate,
		"uptime_seconds":   int64(time.Since(h.started).Seconds()),
	})
}

// TracksHandler lists every track with its current overall decay.
func (h *APIHandler) TracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks := h.meta.AllTracks()
	summaries := make([]model.TrackSummary, 0, len(tracks))
	for _, t := range tracks {
		deg, err := h.meta.OverallDegradation(t.Filename, h.store.Rate())
		if err != nil {
			// Record vanished mid-listing; leave it out of this response.
			continue
		}
		summaries = append(summaries, model.TrackSummary{
			Filename:           t.Filename,
			Title:              t.Title,
			Duration:           t.Duration,
			OverallDegradation: deg,
			TotalStreams:       t.TotalStreams,
			TotalChunks:        totalChunks(t.Duration),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// StatsHandler returns the full decay record for one track.
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	meta, err := h.meta.GetTrack(filename)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	deg, err := h.meta.OverallDegradation(filename, h.store.Rate())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*model.TrackMetadata
		OverallDegradation float64 `json:"overall_degradation"`
	}{meta, deg})
}

type degradeRequest struct {
	SegmentIndex *int `json:"segment_index"`
}

// DegradeHandler burns one play into a segment: the audio is rewritten in
// place and the play count incremented before the response goes out.
func (h *APIHandler) DegradeHandler(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	var req degradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SegmentIndex == nil {
		writeError(w, http.StatusBadRequest, "segment_index is required")
		return
	}

	res, err := h.store.DegradeSegment(r.Context(), filename, *req.SegmentIndex)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	idx := res.SegmentIndex
	h.hub.Publish(&events.Event{
		Type:               events.EventDegrade,
		Filename:           res.Filename,
		SegmentIndex:       &idx,
		PlayCount:          res.PlayCount,
		OverallDegradation: res.Degradation,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":             true,
		"filename":            res.Filename,
		"segment_index":       res.SegmentIndex,
		"play_count":          res.PlayCount,
		"overall_degradation": res.Degradation,
	})
}

// WaveformHandler serves the peak overview for one track. The overview is a
// snapshot from registration time; it does not chase the decay.
func (h *APIHandler) WaveformHandler(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	if _, err := h.meta.GetTrack(filename); err != nil {
		writeDomainError(w, err)
		return
	}
	path, err := h.store.TrackPath(filename)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	points, err := h.waveforms.Get(r.Context(), path, filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "track not found")
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, points)
}
