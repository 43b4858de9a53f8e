package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"trustlog/core/attachments"
	"trustlog/core/records"
	"trustlog/core/utils"
)

type AttachmentsHandler struct {
	files  *attachments.FileStore
	writer *records.Writer
	engine *records.Engine
	logger *utils.Logger
}

func NewAttachmentsHandler(files *attachments.FileStore, writer *records.Writer, engine *records.Engine, logger *utils.Logger) *AttachmentsHandler {
	return &AttachmentsHandler{files: files, writer: writer, engine: engine, logger: logger}
}

// Download streams a stored file. Only names that belong to an attachment row
// are served.
func (h *AttachmentsHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := pathParams(r)["storage_name"]
	att, err := h.engine.AttachmentByStorageName(r.Context(), name)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	f, err := h.files.Open(att.StorageName)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	defer f.Close()
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Disposition", attachmentDisposition(safeFileName(att.OriginalFilename)))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(att.SizeBytes, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Errorf("download %s: %v", att.StorageName, err)
	}
}

func (h *AttachmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	attID, err := idParam(r, "id", "attachment")
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := h.writer.DeleteAttachment(r.Context(), id, attID); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("attachment %d deleted", attID)})
}
