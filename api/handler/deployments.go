package handler

import (
	"net/http"
	"time"
)

type deploymentView struct {
	Directory string    `json:"directory"`
	Timestamp time.Time `json:"timestamp"`
	Millis    int64     `json:"millis"`
	Complete  bool      `json:"complete"`
	Files     []string  `json:"files"`
}

func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	req := h.request(r, r.URL.Query().Get("region"), "")
	records, bucket, err := h.rollbacks.Deployments(r.Context(), req)
	if err != nil {
		writeRollbackError(w, err)
		return
	}

	views := make([]deploymentView, 0, len(records))
	for _, rec := range records {
		ms, _ := rec.Millis()
		views = append(views, deploymentView{
			Directory: rec.Directory,
			Timestamp: rec.Timestamp(),
			Millis:    ms,
			Complete:  rec.Complete(),
			Files:     rec.FileNames(),
		})
	}
	writeJSON(w, map[string]interface{}{
		"service":     req.Service,
		"stage":       req.Stage,
		"bucket":      bucket,
		"deployments": views,
	})
}
