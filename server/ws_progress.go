package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"ChromaFM/logger"
	"ChromaFM/model"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriteTimeout bounds a single progress frame write.
const wsWriteTimeout = 10 * time.Second

// ScanProgressWSHandler streams scan job progress over a WebSocket. The
// current state is sent immediately, then every update until the job
// leaves the running state or the client disconnects.
func (h *APIHandler) ScanProgressWSHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, ok := h.jobs.get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "Scan job not found")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.jobs.subscribe(jobID)
	defer cancel()

	// Drain client frames so close messages are noticed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !h.writeProgress(conn, job) {
		return
	}
	if job.Status != model.ScanStatusRunning {
		return
	}

	for {
		select {
		case update := <-updates:
			if !h.writeProgress(conn, update) {
				return
			}
			if update.Status != model.ScanStatusRunning {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func (h *APIHandler) writeProgress(conn *websocket.Conn, job model.ScanJob) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(job); err != nil {
		logger.Warn("failed to write scan progress frame", logger.ErrorField(err))
		return false
	}
	return true
}
