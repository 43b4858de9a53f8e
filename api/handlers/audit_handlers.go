package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"trustlog/core/errs"
	"trustlog/core/store"
	"trustlog/core/utils"
)

type AuditHandler struct {
	audits store.AuditStore
	logger *utils.Logger
}

func NewAuditHandler(audits store.AuditStore, logger *utils.Logger) *AuditHandler {
	return &AuditHandler{audits: audits, logger: logger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, h.logger, errs.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	items, err := h.audits.List(r.Context(), limit)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []store.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, items)
}
