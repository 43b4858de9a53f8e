package records

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"trustlog/core/attachments"
	"trustlog/core/auth"
	"trustlog/core/errs"
	"trustlog/core/store"
	"trustlog/core/utils"
)

// Writer applies record mutations as one unit across the database and the
// attachment file store. Uploads are staged, promoted inside the transaction's
// commit hook and discarded again on any failure; files being removed are
// trashed before commit and purged only after it.
type Writer struct {
	records   store.RecordsStore
	files     *attachments.FileStore
	audits    store.AuditStore
	logger    *utils.Logger
	maxUpload int64
}

func NewWriter(records store.RecordsStore, files *attachments.FileStore, audits store.AuditStore, logger *utils.Logger, maxUpload int64) *Writer {
	return &Writer{records: records, files: files, audits: audits, logger: logger, maxUpload: maxUpload}
}

// Create stores a new record with its uploads. The result carries the
// attachment count the way list results do.
func (w *Writer) Create(ctx context.Context, actor *auth.Identity, in Input, uploads []Upload) (*store.RecordSummary, error) {
	if actor == nil {
		return nil, errs.Unauthenticated("")
	}
	rec, err := normalize(in)
	if err != nil {
		return nil, err
	}
	uploads, err = w.checkUploads(uploads)
	if err != nil {
		return nil, err
	}
	rec.CreatedBy = actor.UserID
	staged, atts, err := w.stage(uploads)
	if err != nil {
		return nil, err
	}
	write := &store.RecordWrite{Record: rec, NewAttachments: atts}
	if _, err := w.records.SaveRecord(ctx, write, func([]store.Attachment) error {
		return w.files.PromoteAll(staged)
	}); err != nil {
		w.files.Discard(staged)
		return nil, w.translate(err)
	}
	rec.Attachments = write.NewAttachments
	w.audit(ctx, actor, "record.create", fmt.Sprintf("id=%d attachments=%d", rec.ID, len(atts)))
	return summarize(rec), nil
}

// Update replaces every field of record id, adds uploads and removes the
// attachments listed in removeIDs. Supporting evidence not resent is cleared
// when the category is no longer the designated one. A missing record is
// reported before the body is validated.
func (w *Writer) Update(ctx context.Context, actor *auth.Identity, id int64, in Input, uploads []Upload, removeIDs []int64) (*store.RecordSummary, error) {
	if actor == nil {
		return nil, errs.Unauthenticated("")
	}
	existing, err := w.records.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errs.NotFound("log record not found")
	}
	rec, err := normalize(in)
	if err != nil {
		return nil, err
	}
	uploads, err = w.checkUploads(uploads)
	if err != nil {
		return nil, err
	}
	rec.ID = id
	rec.CreatedBy = existing.CreatedBy
	staged, atts, err := w.stage(uploads)
	if err != nil {
		return nil, err
	}
	var trash *attachments.TrashBatch
	removed, err := w.records.SaveRecord(ctx, &store.RecordWrite{
		Record:              rec,
		NewAttachments:      atts,
		RemoveAttachmentIDs: dedupeIDs(removeIDs),
	}, func(removed []store.Attachment) error {
		if err := w.files.PromoteAll(staged); err != nil {
			return err
		}
		batch, err := w.files.Trash(storageNames(removed))
		if err != nil {
			return err
		}
		trash = batch
		return nil
	})
	if err != nil {
		if trash != nil {
			if rerr := trash.Restore(); rerr != nil {
				w.logger.Errorf("records: restore trashed files for %d: %v", id, rerr)
			}
		}
		w.files.Discard(staged)
		return nil, w.translate(err)
	}
	trash.Purge()
	w.audit(ctx, actor, "record.update", fmt.Sprintf("id=%d added=%d removed=%d", id, len(atts), len(removed)))
	fresh, err := w.records.GetRecord(ctx, id)
	if err != nil || fresh == nil {
		w.logger.Errorf("records: reload %d after update: %v", id, err)
		return summarize(rec), nil
	}
	return summarize(fresh), nil
}

// DeleteRecord removes the record and every attachment it owns.
func (w *Writer) DeleteRecord(ctx context.Context, actor *auth.Identity, id int64) error {
	if actor == nil {
		return errs.Unauthenticated("")
	}
	var trash *attachments.TrashBatch
	atts, err := w.records.DeleteRecord(ctx, id, func(atts []store.Attachment) error {
		batch, err := w.files.Trash(storageNames(atts))
		if err != nil {
			return err
		}
		trash = batch
		return nil
	})
	if err != nil {
		if trash != nil {
			if rerr := trash.Restore(); rerr != nil {
				w.logger.Errorf("records: restore trashed files for %d: %v", id, rerr)
			}
		}
		return w.translate(err)
	}
	trash.Purge()
	w.audit(ctx, actor, "record.delete", fmt.Sprintf("id=%d attachments=%d", id, len(atts)))
	return nil
}

// DeleteAttachment removes a single attachment; the owning record and its
// other attachments are untouched.
func (w *Writer) DeleteAttachment(ctx context.Context, actor *auth.Identity, id int64) error {
	if actor == nil {
		return errs.Unauthenticated("")
	}
	var trash *attachments.TrashBatch
	att, err := w.records.DeleteAttachment(ctx, id, func(att *store.Attachment) error {
		batch, err := w.files.Trash([]string{att.StorageName})
		if err != nil {
			return err
		}
		trash = batch
		return nil
	})
	if err != nil {
		if trash != nil {
			if rerr := trash.Restore(); rerr != nil {
				w.logger.Errorf("records: restore trashed file for attachment %d: %v", id, rerr)
			}
		}
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("attachment not found")
		}
		return w.translate(err)
	}
	trash.Purge()
	w.audit(ctx, actor, "attachment.delete", fmt.Sprintf("id=%d record=%d", att.ID, att.RecordID))
	return nil
}

// checkUploads drops empty file parts and rejects the first disallowed
// extension before anything is written.
func (w *Writer) checkUploads(uploads []Upload) ([]Upload, error) {
	var out []Upload
	for _, up := range uploads {
		if strings.TrimSpace(up.Filename) == "" || up.Body == nil {
			continue
		}
		if !w.files.Allowed(up.Filename) {
			return nil, errs.AttachmentRejected(up.Filename)
		}
		out = append(out, up)
	}
	return out, nil
}

func (w *Writer) stage(uploads []Upload) ([]*attachments.Staged, []store.Attachment, error) {
	staged := make([]*attachments.Staged, 0, len(uploads))
	atts := make([]store.Attachment, 0, len(uploads))
	for _, up := range uploads {
		st, err := w.files.Stage(up.Body, up.Filename, w.maxUpload)
		if err != nil {
			w.files.Discard(staged)
			if errors.Is(err, attachments.ErrTooLarge) {
				return nil, nil, errs.Validation("file %s exceeds the upload limit", up.Filename)
			}
			return nil, nil, err
		}
		staged = append(staged, st)
		ext := attachments.Extension(up.Filename)
		atts = append(atts, store.Attachment{
			OriginalFilename: up.Filename,
			StorageName:      st.Name,
			Extension:        ext,
			ContentType:      contentType(up.ContentType, ext),
			SizeBytes:        st.Size,
		})
	}
	return staged, atts, nil
}

func (w *Writer) translate(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NotFound("log record not found")
	case errors.Is(err, store.ErrAttachmentMismatch):
		return &errs.Error{Kind: errs.KindValidation, Reason: "attachment does not belong to this record", Err: err}
	}
	return err
}

func (w *Writer) audit(ctx context.Context, actor *auth.Identity, action, details string) {
	if w.audits == nil {
		return
	}
	if err := w.audits.Log(ctx, actor.Username, action, details); err != nil {
		w.logger.Errorf("audit %s: %v", action, err)
	}
}

func summarize(rec *store.Record) *store.RecordSummary {
	return &store.RecordSummary{Record: *rec, AttachmentCount: len(rec.Attachments)}
}

func contentType(declared, ext string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func storageNames(atts []store.Attachment) []string {
	names := make([]string, 0, len(atts))
	for _, a := range atts {
		names = append(names, a.StorageName)
	}
	return names
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
