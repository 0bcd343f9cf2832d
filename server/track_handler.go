package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"ChromaFM/logger"
	"ChromaFM/storage"
)

// GetTracksHandler lists every track in the library.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetAllTracks()
	if err != nil {
		logger.Error("failed to list tracks", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list tracks")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler returns one track by ID.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}
	track, err := h.trackRepo.GetTrackByID(id)
	if err != nil {
		logger.Error("failed to get track", logger.Int64("trackId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// TrackAudioURLHandler returns a presigned download URL for an archived
// track. Only available when object storage is enabled.
func (h *APIHandler) TrackAudioURLHandler(w http.ResponseWriter, r *http.Request) {
	if !storage.Enabled() {
		writeError(w, http.StatusNotFound, "Object storage is not enabled")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}
	track, err := h.trackRepo.GetTrackByID(id)
	if err != nil || track == nil {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}

	url, err := storage.PresignAudioURL(r.Context(), track.FilePath, time.Hour)
	if err != nil {
		logger.Error("failed to presign audio url",
			logger.Int64("trackId", id),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create audio URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
