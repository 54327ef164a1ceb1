package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rewind/api/saga"
)

func (h *Handler) GetSagaEvents(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "sagaId")
	events, err := h.events.ListBySaga(r.Context(), sagaID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "saga "+sagaID+" not found")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte((&saga.PlainFormatter{}).Format(events)))
		return
	}
	writeJSON(w, events)
}
