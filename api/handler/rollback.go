package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rewind/api/hub"
	"rewind/api/rollback"
)

type rollbackBody struct {
	Timestamp string `json:"timestamp"`
	Region    string `json:"region,omitempty"`
	// Overrides of the server's poll settings; zero keeps the default.
	PollIntervalMs   int64 `json:"pollIntervalMs,omitempty"`
	MonitorTimeoutMs int64 `json:"monitorTimeoutMs,omitempty"`
}

// Rollback prepares synchronously so caller mistakes come back as 4xx,
// then executes in the background. Progress is reported through the saga
// journal and the websocket hub.
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	var body rollbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := h.request(r, body.Region, body.Timestamp)
	if body.PollIntervalMs != 0 {
		req.PollInterval = time.Duration(body.PollIntervalMs) * time.Millisecond
	}
	if body.MonitorTimeoutMs != 0 {
		req.MonitorTimeout = time.Duration(body.MonitorTimeoutMs) * time.Millisecond
	}

	h.mu.Lock()
	if sagaID, busy := h.inFlight[req.StackName]; busy {
		h.mu.Unlock()
		writeJSONStatus(w, http.StatusConflict, map[string]string{
			"error":  "a rollback of " + req.StackName + " is already running",
			"sagaId": sagaID,
		})
		return
	}
	h.inFlight[req.StackName] = ""
	h.mu.Unlock()

	plan, err := h.rollbacks.Prepare(r.Context(), req)
	if err != nil {
		h.release(req.StackName)
		writeRollbackError(w, err)
		return
	}
	h.mu.Lock()
	h.inFlight[req.StackName] = plan.SagaID()
	h.mu.Unlock()

	h.wg.Add(1)
	go h.execute(plan)

	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"sagaId":      plan.SagaID(),
		"status":      "rolling_back",
		"stackName":   plan.Update.StackName,
		"directory":   plan.Deployment.Directory,
		"templateUrl": plan.Update.TemplateURL,
	})
}

func (h *Handler) execute(plan *rollback.Plan) {
	defer h.wg.Done()
	defer h.release(plan.Request.StackName)

	start := time.Now()
	op, err := h.rollbacks.Execute(context.Background(), plan)
	log := h.log.With(zap.String("saga", plan.SagaID()), zap.String("stack", plan.Request.StackName))

	evt := hub.Event{SagaID: plan.SagaID(), Service: plan.Request.Service, Stage: plan.Request.Stage}
	if err != nil {
		log.Warn("rollback failed", zap.Error(err), zap.Int64("elapsedMs", since(start)))
		evt.Type = "rollback.failed"
		evt.Payload = map[string]string{"error": err.Error()}
	} else {
		log.Info("rollback complete", zap.String("directory", plan.Deployment.Directory), zap.Int64("elapsedMs", since(start)))
		evt.Type = "rollback.completed"
		evt.Payload = op
	}
	if h.ws != nil {
		h.ws.Broadcast(evt)
	}
}

func (h *Handler) release(stackName string) {
	h.mu.Lock()
	delete(h.inFlight, stackName)
	h.mu.Unlock()
}
