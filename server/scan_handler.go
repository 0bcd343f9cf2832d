package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ChromaFM/cache"
	"ChromaFM/logger"
	"ChromaFM/model"
)

// scanJobManager tracks in-flight and recently finished scan jobs in
// memory and fans progress updates out to WebSocket subscribers.
type scanJobManager struct {
	mu   sync.RWMutex
	jobs map[string]*model.ScanJob
	subs map[string]map[chan model.ScanJob]struct{}
}

func newScanJobManager() *scanJobManager {
	return &scanJobManager{
		jobs: make(map[string]*model.ScanJob),
		subs: make(map[string]map[chan model.ScanJob]struct{}),
	}
}

func (m *scanJobManager) create(directory string) *model.ScanJob {
	job := &model.ScanJob{
		ID:        uuid.NewString(),
		Directory: directory,
		Status:    model.ScanStatusRunning,
		StartedAt: time.Now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return job
}

func (m *scanJobManager) get(id string) (model.ScanJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return model.ScanJob{}, false
	}
	return *job, true
}

// update mutates the job under lock and broadcasts a snapshot. Slow
// subscribers miss intermediate updates instead of blocking the scan.
func (m *scanJobManager) update(id string, fn func(*model.ScanJob)) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	fn(job)
	snapshot := *job
	subs := m.subs[id]
	m.mu.Unlock()

	for ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (m *scanJobManager) subscribe(id string) (chan model.ScanJob, func()) {
	ch := make(chan model.ScanJob, 16)
	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[chan model.ScanJob]struct{})
	}
	m.subs[id][ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs[id], ch)
		m.mu.Unlock()
	}
	return ch, cancel
}

// StartScanHandler kicks off an asynchronous library scan and returns the
// job ID for progress tracking.
func (h *APIHandler) StartScanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Directory string `json:"directory"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	dir := req.Directory
	if dir == "" {
		dir = h.cfg.LibraryDir
	}

	job := h.jobs.create(dir)
	go h.runScan(job.ID, dir)

	writeJSON(w, http.StatusAccepted, job)
}

func (h *APIHandler) runScan(jobID, dir string) {
	ctx := context.Background()
	opts := h.pipelineOptions(func(current, total int, message string) {
		h.jobs.update(jobID, func(job *model.ScanJob) {
			job.Current = current
			job.Total = total
			job.Message = message
		})
	})

	report, err := h.scanner.Scan(ctx, dir, opts)
	h.jobs.update(jobID, func(job *model.ScanJob) {
		if err != nil {
			job.Status = model.ScanStatusFailed
			job.Message = err.Error()
		} else {
			job.Status = model.ScanStatusCompleted
			job.Message = "scan completed"
		}
		if report != nil {
			job.Successful = len(report.SuccessfulIDs)
			job.Errors = report.Errors
		}
	})
	if err != nil {
		logger.Error("scan job failed",
			logger.String("jobId", jobID),
			logger.ErrorField(err))
		return
	}

	// The indexed library changed, so cached playlists are stale.
	if err := cache.InvalidatePlaylists(ctx); err != nil {
		logger.Warn("failed to invalidate playlist cache", logger.ErrorField(err))
	}
}

// ScanStatusHandler reports the current state of a scan job.
func (h *APIHandler) ScanStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, ok := h.jobs.get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "Scan job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ScanHistoryHandler lists recent scan runs.
func (h *APIHandler) ScanHistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	scans, err := h.historyRepo.RecentScans(limit)
	if err != nil {
		logger.Error("failed to list scan history", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list scan history")
		return
	}
	writeJSON(w, http.StatusOK, scans)
}
