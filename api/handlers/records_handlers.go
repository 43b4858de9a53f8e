package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trustlog/config"
	"trustlog/core/errs"
	"trustlog/core/records"
	"trustlog/core/store"
	"trustlog/core/utils"
)

const multipartMemory = 8 << 20

type RecordsHandler struct {
	cfg    *config.AppConfig
	writer *records.Writer
	engine *records.Engine
	logger *utils.Logger
}

func NewRecordsHandler(cfg *config.AppConfig, writer *records.Writer, engine *records.Engine, logger *utils.Logger) *RecordsHandler {
	return &RecordsHandler{cfg: cfg, writer: writer, engine: engine, logger: logger}
}

// recordForm is one decoded create/update request. close releases any open
// multipart parts and temp files.
type recordForm struct {
	input     records.Input
	uploads   []records.Upload
	removeIDs []int64
	closers   []io.Closer
	form      interface{ RemoveAll() error }
}

func (f *recordForm) close() {
	for _, c := range f.closers {
		_ = c.Close()
	}
	if f.form != nil {
		_ = f.form.RemoveAll()
	}
}

type jsonRecordBody struct {
	records.Input
	RemoveAttachmentIDs []int64 `json:"remove_attachment_ids"`
}

func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	form, ok := h.readForm(w, r)
	if !ok {
		return
	}
	defer form.close()
	rec, err := h.writer.Create(r.Context(), id, form.input, form.uploads)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	recordID, err := idParam(r, "id", "log record")
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	form, ok := h.readForm(w, r)
	if !ok {
		return
	}
	defer form.close()
	rec, err := h.writer.Update(r.Context(), id, recordID, form.input, form.uploads, form.removeIDs)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	recordID, err := idParam(r, "id", "log record")
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := h.writer.DeleteRecord(r.Context(), id, recordID); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("log record %d deleted", recordID)})
}

func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	recordID, err := idParam(r, "id", "log record")
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	rec, err := h.engine.Get(r.Context(), recordID)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.query(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *RecordsHandler) Attachments(w http.ResponseWriter, r *http.Request) {
	recordID, err := idParam(r, "id", "log record")
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	items, err := h.engine.Attachments(r.Context(), recordID)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Export writes the filtered list as CSV, one row per record.
func (h *RecordsHandler) Export(w http.ResponseWriter, r *http.Request) {
	items, err := h.query(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	filename := "trustlog_" + time.Now().UTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"id", "date_of_incident", "time_of_incident", "category", "description_of_incident",
		"impact_types", "impact_details", "supporting_evidence_snippet", "exhibit_reference",
		"attachment_count", "created_at",
	})
	for i := range items {
		it := items[i]
		_ = writer.Write([]string{
			strconv.FormatInt(it.ID, 10),
			it.DateOfIncident,
			deref(it.TimeOfIncident),
			it.Category,
			it.Description,
			strings.Join(it.ImpactTypes, "; "),
			deref(it.ImpactDetails),
			deref(it.SupportingEvidence),
			deref(it.ExhibitReference),
			strconv.Itoa(it.AttachmentCount),
			it.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writer.Flush()
}

func (h *RecordsHandler) query(r *http.Request) ([]store.RecordSummary, error) {
	q := r.URL.Query()
	f, err := records.ParseFilter(q.Get("category"), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		return nil, err
	}
	s, err := records.ParseSort(q.Get("sort_by"), q.Get("sort_order"))
	if err != nil {
		return nil, err
	}
	return h.engine.Query(r.Context(), f, s)
}

// readForm decodes a multipart or JSON record body. On failure the response
// has already been written.
func (h *RecordsHandler) readForm(w http.ResponseWriter, r *http.Request) (*recordForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.EffectiveMaxUploadBytes())
	if !isMultipart(r) {
		var body jsonRecordBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if h.tooLarge(w, err) {
				return nil, false
			}
			WriteError(w, h.logger, errs.Validation("invalid JSON body"))
			return nil, false
		}
		return &recordForm{input: body.Input, removeIDs: body.RemoveAttachmentIDs}, true
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if h.tooLarge(w, err) {
			return nil, false
		}
		WriteError(w, h.logger, errs.Validation("invalid multipart body"))
		return nil, false
	}
	mf := r.MultipartForm
	form := &recordForm{form: mf}
	value := func(key string) string {
		if vals := mf.Value[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	impacts, err := listField(mf.Value["impact_types"])
	if err != nil {
		form.close()
		WriteError(w, h.logger, errs.Validation("impact_types must be a valid JSON array"))
		return nil, false
	}
	form.input = records.Input{
		DateOfIncident:   value("date_of_incident"),
		TimeOfIncident:   value("time_of_incident"),
		Category:         value("category"),
		Description:      value("description_of_incident"),
		ImpactTypes:      impacts,
		ImpactDetails:    value("impact_details"),
		ExhibitReference: value("exhibit_reference"),
	}
	if vals, ok := mf.Value["supporting_evidence_snippet"]; ok && len(vals) > 0 && vals[0] != "null" {
		ev := vals[0]
		form.input.SupportingEvidence = &ev
	}
	rawIDs, err := listField(mf.Value["remove_attachment_ids"])
	if err != nil {
		form.close()
		WriteError(w, h.logger, errs.Validation("remove_attachment_ids must be a list of ids"))
		return nil, false
	}
	for _, raw := range rawIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			form.close()
			WriteError(w, h.logger, errs.Validation("invalid attachment id: %s", raw))
			return nil, false
		}
		form.removeIDs = append(form.removeIDs, id)
	}
	for _, fh := range mf.File["files"] {
		f, err := fh.Open()
		if err != nil {
			form.close()
			WriteError(w, h.logger, fmt.Errorf("open upload %q: %w", fh.Filename, err))
			return nil, false
		}
		form.closers = append(form.closers, f)
		form.uploads = append(form.uploads, records.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return form, true
}

func (h *RecordsHandler) tooLarge(w http.ResponseWriter, err error) bool {
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		return false
	}
	writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
		"error": fmt.Sprintf("request body exceeds %d bytes", mbe.Limit),
		"code":  string(errs.KindValidation),
	})
	return true
}

// listField accepts either a single JSON array value or repeated form values.
// A single comma separated value is split as well.
func listField(vals []string) ([]string, error) {
	if len(vals) == 1 {
		raw := strings.TrimSpace(vals[0])
		if strings.HasPrefix(raw, "[") {
			var out []any
			if err := json.Unmarshal([]byte(raw), &out); err != nil {
				return nil, err
			}
			list := make([]string, 0, len(out))
			for _, v := range out {
				switch t := v.(type) {
				case string:
					list = append(list, t)
				case float64:
					list = append(list, strconv.FormatInt(int64(t), 10))
				default:
					return nil, fmt.Errorf("unsupported list element %v", v)
				}
			}
			return list, nil
		}
		if raw == "" {
			return nil, nil
		}
		if strings.Contains(raw, ",") {
			parts := strings.Split(raw, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out, nil
		}
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
