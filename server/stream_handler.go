package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"decayfm/core/events"
	"decayfm/core/store"
	"decayfm/core/wavio"
	"decayfm/logger"
)

// setNoCacheHeaders marks a response as uncacheable. The bytes behind every
// audio URL change as the track decays, so any cached copy is already wrong.
func setNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// StreamHandler serves a whole WAV in its current decayed state. Range
// requests get partial content; a plain request counts as one full stream.
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
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

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "track not found")
			return
		}
		writeDomainError(w, err)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Seek requests inside an ongoing playback should not count again.
	if r.Header.Get("Range") == "" {
		total, err := h.store.CountStream(r.Context(), filename)
		if err != nil {
			logger.Warn("failed to count stream",
				logger.String("filename", filename), logger.ErrorField(err))
		} else {
			h.hub.Publish(&events.Event{
				Type:         events.EventStream,
				Filename:     filename,
				TotalStreams: total,
			})
		}
	}

	w.Header().Set("Content-Type", "audio/wav")
	setNoCacheHeaders(w)
	http.ServeContent(w, r, filename, fi.ModTime(), f)
}

// ChunkHandler serves one chunk of a track as a standalone WAV with its own
// header, so a player can fetch and decode chunks independently.
func (h *APIHandler) ChunkHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filename := vars["filename"]

	chunkIndex, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk index")
		return
	}

	if _, err := h.meta.GetTrack(filename); err != nil {
		writeDomainError(w, err)
		return
	}

	buf, err := h.store.ReadChunk(filename, chunkIndex, chunkDuration)
	if err != nil {
		// Past the end of the track there is simply no such chunk.
		if errors.Is(err, store.ErrInvalidSegment) {
			writeError(w, http.StatusNotFound, "chunk not found")
			return
		}
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(wavio.EncodedSize(buf)))
	setNoCacheHeaders(w)
	if err := wavio.Encode(w, buf); err != nil {
		logger.Warn("chunk write aborted",
			logger.String("filename", filename),
			logger.Int("chunk", chunkIndex),
			logger.ErrorField(err))
	}
}
