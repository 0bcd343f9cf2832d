package server

import (
	"encoding/json"
	"net/http"

	"ChromaFM/config"
	"ChromaFM/core/pipeline"
	"ChromaFM/core/playlist"
	"ChromaFM/core/scanner"
	"ChromaFM/logger"
	"ChromaFM/repository"
)

// APIHandler bundles the dependencies shared by all HTTP handlers.
type APIHandler struct {
	cfg         *config.Config
	trackRepo   repository.TrackRepository
	userRepo    repository.UserRepository
	historyRepo repository.ScanHistoryRepository
	scanner     *scanner.Scanner
	generator   *playlist.Generator
	jobs        *scanJobManager
}

// NewAPIHandler creates the API handler with all its dependencies.
func NewAPIHandler(
	cfg *config.Config,
	trackRepo repository.TrackRepository,
	userRepo repository.UserRepository,
	historyRepo repository.ScanHistoryRepository,
	sc *scanner.Scanner,
	gen *playlist.Generator,
) *APIHandler {
	return &APIHandler{
		cfg:         cfg,
		trackRepo:   trackRepo,
		userRepo:    userRepo,
		historyRepo: historyRepo,
		scanner:     sc,
		generator:   gen,
		jobs:        newScanJobManager(),
	}
}

// pipelineOptions builds the extraction options for API-triggered scans.
func (h *APIHandler) pipelineOptions(progress func(current, total int, message string)) pipeline.Options {
	return pipeline.Options{
		BatchSize: h.cfg.BatchSize,
		Workers:   h.cfg.WorkerCount,
		Progress:  progress,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
