package handlers

import (
	"net/http"

	"trustlog/core/records"
	"trustlog/core/reports"
	"trustlog/core/utils"
)

type ReportsHandler struct {
	engine *records.Engine
	logger *utils.Logger
}

func NewReportsHandler(engine *records.Engine, logger *utils.Logger) *ReportsHandler {
	return &ReportsHandler{engine: engine, logger: logger}
}

// Summary aggregates the records matching the same filters as the list
// endpoint. Sort parameters only affect first-seen key order.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := records.ParseFilter(q.Get("category"), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	s, err := records.ParseSort(q.Get("sort_by"), q.Get("sort_order"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	summary, err := reports.SummarizeSeq(h.engine.Records(r.Context(), f, s))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
