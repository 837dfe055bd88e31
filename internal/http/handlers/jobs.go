package handlers

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"posterd/internal/domain"
	"posterd/internal/jobs"
)

func jobJSON(job domain.Job) map[string]any {
	return map[string]any{
		"job_id":             job.ID,
		"status":             job.Status,
		"progress":           job.Progress,
		"message":            job.Message,
		"error":              job.Error,
		"created_at":         job.CreatedAt,
		"completed_at":       job.CompletedAt,
		"download_available": job.DownloadAvailable(),
	}
}

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	snaps := a.Store.List()
	items := make([]map[string]any, 0, len(snaps))
	for _, job := range snaps {
		items = append(items, jobJSON(job))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": items})
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.Store.Get(chi.URLParam(r, "id"))
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, jobJSON(job))
}

// JobStream upgrades to a WebSocket and pushes one JSON text frame per
// job snapshot until the job reaches a terminal state. Subscribing to an
// already finished job yields exactly the one catch-up frame.
func (a *App) JobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	sub, ok := a.Store.Subscribe(jobID)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		sub.Cancel()
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("ws: upgrade failed")
		return
	}
	go a.streamJob(conn, sub)
}

func (a *App) streamJob(conn net.Conn, sub *jobs.Subscription) {
	defer conn.Close()
	defer sub.Cancel()

	// The read loop only exists to notice the peer going away; canceling
	// the subscription unblocks the write loop below.
	go func() {
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				sub.Cancel()
				return
			}
		}
	}()

	for snap := range sub.Updates() {
		payload, err := json.Marshal(jobJSON(snap))
		if err != nil {
			a.Logger.Error().Err(err).Str("job_id", sub.JobID()).Msg("ws: marshal snapshot")
			return
		}
		if err := wsutil.WriteServerText(conn, payload); err != nil {
			return
		}
	}
	_ = ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
}
