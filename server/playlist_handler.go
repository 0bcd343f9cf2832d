package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"ChromaFM/cache"
	"ChromaFM/core/feature"
	"ChromaFM/core/playlist"
	"ChromaFM/core/similarity"
	"ChromaFM/logger"
	"ChromaFM/model"
)

// playlistResponse carries the generated ordering plus resolved metadata
// for display.
type playlistResponse struct {
	TrackIDs []int64        `json:"trackIds"`
	Tracks   []*model.Track `json:"tracks"`
}

// FanoutPlaylistHandler generates a seed-plus-nearest-neighbors playlist.
func (h *APIHandler) FanoutPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID int64  `json:"trackId"`
		Path    string `json:"path"`
		K       int    `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	trackID, ok := h.resolveSeed(w, r.Context(), req.TrackID, req.Path)
	if !ok {
		return
	}

	key := cache.PlaylistKey("fanout", []int64{trackID}, req.K)
	h.generateCached(w, r.Context(), key, func(ctx context.Context) ([]int64, error) {
		return h.generator.Fanout(ctx, trackID, req.K)
	})
}

// WalkPlaylistHandler generates an interpolation walk between two tracks.
// Mode "gradient" re-anchors at each placed track; anything else walks
// the straight line between the endpoints.
func (h *APIHandler) WalkPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartID   int64  `json:"startId"`
		DestID    int64  `json:"destId"`
		StartPath string `json:"startPath"`
		DestPath  string `json:"destPath"`
		N         int    `json:"n"`
		Mode      string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	startID, ok := h.resolveSeed(w, r.Context(), req.StartID, req.StartPath)
	if !ok {
		return
	}
	destID, ok := h.resolveSeed(w, r.Context(), req.DestID, req.DestPath)
	if !ok {
		return
	}

	mode := playlist.WalkLinear
	if req.Mode == "gradient" {
		mode = playlist.WalkGradient
	}

	key := cache.PlaylistKey("walk", []int64{startID, destID}, req.N, int(mode))
	h.generateCached(w, r.Context(), key, func(ctx context.Context) ([]int64, error) {
		return h.generator.InterpolationWalk(ctx, startID, destID, req.N, mode)
	})
}

// DirectionalPlaylistHandler generates a directional step walk between
// two tracks.
func (h *APIHandler) DirectionalPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartID   int64  `json:"startId"`
		DestID    int64  `json:"destId"`
		StartPath string `json:"startPath"`
		DestPath  string `json:"destPath"`
		N         int    `json:"n"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	startID, ok := h.resolveSeed(w, r.Context(), req.StartID, req.StartPath)
	if !ok {
		return
	}
	destID, ok := h.resolveSeed(w, r.Context(), req.DestID, req.DestPath)
	if !ok {
		return
	}

	key := cache.PlaylistKey("directional", []int64{startID, destID}, req.N)
	h.generateCached(w, r.Context(), key, func(ctx context.Context) ([]int64, error) {
		return h.generator.DirectionalWalk(ctx, startID, destID, req.N)
	})
}

// StitchPlaylistHandler chains directional walks through a waypoint
// sequence.
func (h *APIHandler) StitchPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackIDs []int64  `json:"trackIds"`
		Paths    []string `json:"paths"`
		N        int      `json:"n"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ids, ok := h.resolveSeeds(w, r.Context(), req.TrackIDs, req.Paths)
	if !ok {
		return
	}

	key := cache.PlaylistKey("stitch", ids, req.N)
	h.generateCached(w, r.Context(), key, func(ctx context.Context) ([]int64, error) {
		return h.generator.Stitch(ctx, ids, req.N)
	})
}

// UnionPlaylistHandler merges the fanouts of several seed tracks.
func (h *APIHandler) UnionPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackIDs []int64  `json:"trackIds"`
		Paths    []string `json:"paths"`
		K        int      `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ids, ok := h.resolveSeeds(w, r.Context(), req.TrackIDs, req.Paths)
	if !ok {
		return
	}

	key := cache.PlaylistKey("union", ids, req.K)
	h.generateCached(w, r.Context(), key, func(ctx context.Context) ([]int64, error) {
		return h.generator.Union(ctx, ids, req.K)
	})
}

// resolveSeed returns the track ID from either an explicit ID or a
// library path. Writes the error response itself on failure.
func (h *APIHandler) resolveSeed(w http.ResponseWriter, ctx context.Context, trackID int64, path string) (int64, bool) {
	if trackID != 0 {
		return trackID, true
	}
	if path == "" {
		writeError(w, http.StatusBadRequest, "Either trackId or path is required")
		return 0, false
	}
	ids, err := h.generator.ResolvePaths(ctx, []string{path})
	if err != nil {
		h.writePlaylistError(w, err)
		return 0, false
	}
	return ids[0], true
}

func (h *APIHandler) resolveSeeds(w http.ResponseWriter, ctx context.Context, trackIDs []int64, paths []string) ([]int64, bool) {
	if len(trackIDs) > 0 {
		return trackIDs, true
	}
	if len(paths) == 0 {
		writeError(w, http.StatusBadRequest, "Either trackIds or paths is required")
		return nil, false
	}
	ids, err := h.generator.ResolvePaths(ctx, paths)
	if err != nil {
		h.writePlaylistError(w, err)
		return nil, false
	}
	return ids, true
}

// generateCached serves the playlist from cache when possible, otherwise
// generates and caches it, then responds with IDs and track metadata.
func (h *APIHandler) generateCached(w http.ResponseWriter, ctx context.Context, key string, generate func(context.Context) ([]int64, error)) {
	ids, err := cache.GetPlaylist(ctx, key)
	if err != nil {
		logger.Warn("playlist cache read failed", logger.ErrorField(err))
	}
	if ids == nil {
		ids, err = generate(ctx)
		if err != nil {
			h.writePlaylistError(w, err)
			return
		}
		if err := cache.SetPlaylist(ctx, key, ids); err != nil {
			logger.Warn("playlist cache write failed", logger.ErrorField(err))
		}
	}

	tracks := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		track, err := h.trackRepo.GetTrackByID(id)
		if err != nil || track == nil {
			continue
		}
		tracks = append(tracks, track)
	}
	writeJSON(w, http.StatusOK, playlistResponse{TrackIDs: ids, Tracks: tracks})
}

func (h *APIHandler) writePlaylistError(w http.ResponseWriter, err error) {
	var unresolved *feature.ErrUnresolvedTrack
	var notFound *feature.ErrFeaturesNotFound
	var dimMismatch *similarity.ErrDimensionMismatch
	switch {
	case errors.As(err, &unresolved), errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, similarity.ErrInvalidK), errors.As(err, &dimMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("playlist generation failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Playlist generation failed")
	}
}
