package handlers

import (
	"net/http"

	"trustlog/core/attachments"
	"trustlog/core/records"
)

type ConfigHandler struct {
	files *attachments.FileStore
}

func NewConfigHandler(files *attachments.FileStore) *ConfigHandler {
	return &ConfigHandler{files: files}
}

func (h *ConfigHandler) AllowedExtensions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.files.AllowedExtensions())
}

func (h *ConfigHandler) Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories":          records.Categories,
		"impact_types":        records.ImpactTypes,
		"designated_category": records.DesignatedCategory,
		"sort_keys":           records.SortKeys,
	})
}
