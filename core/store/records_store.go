package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrAttachmentMismatch = errors.New("attachment does not belong to record")

type Record struct {
	ID                 int64        `json:"id"`
	DateOfIncident     string       `json:"date_of_incident"`
	TimeOfIncident     *string      `json:"time_of_incident"`
	Category           string       `json:"category"`
	Description        string       `json:"description_of_incident"`
	ImpactTypes        []string     `json:"impact_types"`
	ImpactDetails      *string      `json:"impact_details"`
	SupportingEvidence *string      `json:"supporting_evidence_snippet"`
	ExhibitReference   *string      `json:"exhibit_reference"`
	CreatedBy          int64        `json:"-"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	Attachments        []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	ID               int64     `json:"id"`
	RecordID         int64     `json:"log_record_id"`
	OriginalFilename string    `json:"original_filename"`
	StorageName      string    `json:"stored_filename"`
	Extension        string    `json:"extension"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

type RecordSummary struct {
	Record
	AttachmentCount int `json:"attachment_count"`
}

// RecordFilter bounds are inclusive YYYY-MM-DD strings; empty means unbounded.
type RecordFilter struct {
	Category  string
	StartDate string
	EndDate   string
}

type RecordSort struct {
	Column string
	Desc   bool
}

var sortColumns = map[string]string{
	"date_of_incident": "r.date_of_incident",
	"category":         "r.category",
	"created_at":       "r.created_at",
}

// RecordWrite describes one create (Record.ID == 0) or update. NewAttachments
// must carry storage names that are not yet in the ledger.
type RecordWrite struct {
	Record              *Record
	NewAttachments      []Attachment
	RemoveAttachmentIDs []int64
}

type RecordsStore interface {
	SaveRecord(ctx context.Context, w *RecordWrite, beforeCommit func(removed []Attachment) error) ([]Attachment, error)
	GetRecord(ctx context.Context, id int64) (*Record, error)
	DeleteRecord(ctx context.Context, id int64, beforeCommit func([]Attachment) error) ([]Attachment, error)
	ListRecords(ctx context.Context, filter RecordFilter, sort RecordSort) ([]RecordSummary, error)
	ListAttachments(ctx context.Context, recordID int64) ([]Attachment, error)
	GetAttachment(ctx context.Context, id int64) (*Attachment, error)
	GetAttachmentByStorageName(ctx context.Context, name string) (*Attachment, error)
	DeleteAttachment(ctx context.Context, id int64, beforeCommit func(*Attachment) error) (*Attachment, error)
	ReferencedStorageNames(ctx context.Context) (map[string]struct{}, error)
}

type recordsStore struct {
	db *DB
}

func NewRecordsStore(db *DB) RecordsStore {
	return &recordsStore{db: db}
}

// SaveRecord writes the record, drops the listed attachments and inserts the
// new ones in a single transaction. beforeCommit runs after every statement
// succeeded and receives the removed attachment rows; an error from it rolls
// everything back.
func (s *recordsStore) SaveRecord(ctx context.Context, w *RecordWrite, beforeCommit func(removed []Attachment) error) ([]Attachment, error) {
	rec := w.Record
	impacts, err := json.Marshal(rec.ImpactTypes)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if rec.ID == 0 {
		rec.CreatedAt = now
		rec.UpdatedAt = now
		id, err := s.db.insertReturningID(ctx, tx, `
			INSERT INTO log_records(date_of_incident, time_of_incident, category, description_of_incident, impact_types,
				impact_details, supporting_evidence_snippet, exhibit_reference, created_by, created_at, updated_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
			rec.DateOfIncident, nullableString(rec.TimeOfIncident), rec.Category, rec.Description, string(impacts),
			nullableString(rec.ImpactDetails), nullableString(rec.SupportingEvidence), nullableString(rec.ExhibitReference),
			rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		rec.ID = id
	} else {
		rec.UpdatedAt = now
		res, err := tx.ExecContext(ctx, s.db.rebind(`
			UPDATE log_records SET date_of_incident=?, time_of_incident=?, category=?, description_of_incident=?, impact_types=?,
				impact_details=?, supporting_evidence_snippet=?, exhibit_reference=?, updated_at=?
			WHERE id=?`),
			rec.DateOfIncident, nullableString(rec.TimeOfIncident), rec.Category, rec.Description, string(impacts),
			nullableString(rec.ImpactDetails), nullableString(rec.SupportingEvidence), nullableString(rec.ExhibitReference),
			rec.UpdatedAt, rec.ID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			tx.Rollback()
			return nil, ErrNotFound
		}
		if err := tx.QueryRowContext(ctx, s.db.rebind(`SELECT created_at FROM log_records WHERE id=?`), rec.ID).Scan(&rec.CreatedAt); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	var removed []Attachment
	for _, attID := range w.RemoveAttachmentIDs {
		att, err := s.scanAttachment(tx.QueryRowContext(ctx, s.db.rebind(attachmentSelect+` WHERE id=?`), attID))
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if att == nil || att.RecordID != rec.ID {
			tx.Rollback()
			return nil, fmt.Errorf("attachment %d: %w", attID, ErrAttachmentMismatch)
		}
		if _, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM attachments WHERE id=?`), attID); err != nil {
			tx.Rollback()
			return nil, err
		}
		removed = append(removed, *att)
	}
	for i := range w.NewAttachments {
		att := &w.NewAttachments[i]
		att.RecordID = rec.ID
		if att.UploadedAt.IsZero() {
			att.UploadedAt = now
		}
		if err := s.reserveStorageName(ctx, tx, att.StorageName, now); err != nil {
			tx.Rollback()
			return nil, err
		}
		id, err := s.db.insertReturningID(ctx, tx, `
			INSERT INTO attachments(log_record_id, original_filename, stored_filename, extension, content_type, size_bytes, uploaded_at)
			VALUES(?,?,?,?,?,?,?)`,
			att.RecordID, att.OriginalFilename, att.StorageName, att.Extension, att.ContentType, att.SizeBytes, att.UploadedAt)
		if err != nil {
			tx.Rollback()
			if isUniqueViolation(err) {
				return nil, ErrConflict
			}
			return nil, err
		}
		att.ID = id
	}
	if beforeCommit != nil {
		if err := beforeCommit(removed); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *recordsStore) reserveStorageName(ctx context.Context, tx *sql.Tx, name string, at time.Time) error {
	if _, err := tx.ExecContext(ctx, s.db.rebind(`INSERT INTO storage_names(name, issued_at) VALUES(?,?)`), name, at); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

const recordSelect = `
	SELECT r.id, r.date_of_incident, r.time_of_incident, r.category, r.description_of_incident, r.impact_types,
		r.impact_details, r.supporting_evidence_snippet, r.exhibit_reference, r.created_by, r.created_at, r.updated_at`

func (s *recordsStore) GetRecord(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.db.rebind(recordSelect+` FROM log_records r WHERE r.id=?`), id)
	rec, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	atts, err := s.ListAttachments(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Attachments = atts
	return rec, nil
}

// DeleteRecord removes the record together with its attachment rows.
// beforeCommit receives the attachments being removed.
func (s *recordsStore) DeleteRecord(ctx context.Context, id int64, beforeCommit func([]Attachment) error) ([]Attachment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	var exists int64
	if err := tx.QueryRowContext(ctx, s.db.rebind(`SELECT id FROM log_records WHERE id=?`), id).Scan(&exists); err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	atts, err := s.listAttachments(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM attachments WHERE log_record_id=?`), id); err != nil {
		tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM log_records WHERE id=?`), id); err != nil {
		tx.Rollback()
		return nil, err
	}
	if beforeCommit != nil {
		if err := beforeCommit(atts); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return atts, nil
}

func (s *recordsStore) ListRecords(ctx context.Context, filter RecordFilter, sort RecordSort) ([]RecordSummary, error) {
	col, ok := sortColumns[sort.Column]
	if !ok {
		return nil, fmt.Errorf("unknown sort column %q", sort.Column)
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	var clauses []string
	var args []any
	if filter.Category != "" {
		clauses = append(clauses, "r.category=?")
		args = append(args, filter.Category)
	}
	if filter.StartDate != "" {
		clauses = append(clauses, "r.date_of_incident>=?")
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		clauses = append(clauses, "r.date_of_incident<=?")
		args = append(args, filter.EndDate)
	}
	query := recordSelect + `, COUNT(a.id) AS attachment_count
		FROM log_records r
		LEFT JOIN attachments a ON a.log_record_id=r.id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` GROUP BY r.id, r.date_of_incident, r.time_of_incident, r.category, r.description_of_incident, r.impact_types,
		r.impact_details, r.supporting_evidence_snippet, r.exhibit_reference, r.created_by, r.created_at, r.updated_at`
	query += " ORDER BY " + col + " " + dir + ", r.id ASC"
	rows, err := s.db.QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []RecordSummary{}
	for rows.Next() {
		var count int
		rec, err := scanRecord(func(dest ...any) error {
			return rows.Scan(append(dest, &count)...)
		})
		if err != nil {
			return nil, err
		}
		res = append(res, RecordSummary{Record: *rec, AttachmentCount: count})
	}
	return res, rows.Err()
}

const attachmentSelect = `SELECT id, log_record_id, original_filename, stored_filename, extension, content_type, size_bytes, uploaded_at FROM attachments`

func (s *recordsStore) ListAttachments(ctx context.Context, recordID int64) ([]Attachment, error) {
	return s.listAttachments(ctx, s.db, recordID)
}

func (s *recordsStore) listAttachments(ctx context.Context, q queryer, recordID int64) ([]Attachment, error) {
	rows, err := q.QueryContext(ctx, s.db.rebind(attachmentSelect+` WHERE log_record_id=? ORDER BY id ASC`), recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Attachment{}
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.RecordID, &a.OriginalFilename, &a.StorageName, &a.Extension, &a.ContentType, &a.SizeBytes, &a.UploadedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *recordsStore) GetAttachment(ctx context.Context, id int64) (*Attachment, error) {
	return s.scanAttachment(s.db.QueryRowContext(ctx, s.db.rebind(attachmentSelect+` WHERE id=?`), id))
}

func (s *recordsStore) GetAttachmentByStorageName(ctx context.Context, name string) (*Attachment, error) {
	return s.scanAttachment(s.db.QueryRowContext(ctx, s.db.rebind(attachmentSelect+` WHERE stored_filename=?`), name))
}

func (s *recordsStore) DeleteAttachment(ctx context.Context, id int64, beforeCommit func(*Attachment) error) (*Attachment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	att, err := s.scanAttachment(tx.QueryRowContext(ctx, s.db.rebind(attachmentSelect+` WHERE id=?`), id))
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if att == nil {
		tx.Rollback()
		return nil, ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM attachments WHERE id=?`), id); err != nil {
		tx.Rollback()
		return nil, err
	}
	if beforeCommit != nil {
		if err := beforeCommit(att); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return att, nil
}

func (s *recordsStore) ReferencedStorageNames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stored_filename FROM attachments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = struct{}{}
	}
	return res, rows.Err()
}

func (s *recordsStore) scanAttachment(row *sql.Row) (*Attachment, error) {
	var a Attachment
	if err := row.Scan(&a.ID, &a.RecordID, &a.OriginalFilename, &a.StorageName, &a.Extension, &a.ContentType, &a.SizeBytes, &a.UploadedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var rec Record
	var tm, details, evidence, exhibit sql.NullString
	var impacts string
	var createdBy sql.NullInt64
	if err := scan(&rec.ID, &rec.DateOfIncident, &tm, &rec.Category, &rec.Description, &impacts,
		&details, &evidence, &exhibit, &createdBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.TimeOfIncident = stringPtr(tm)
	rec.ImpactDetails = stringPtr(details)
	rec.SupportingEvidence = stringPtr(evidence)
	rec.ExhibitReference = stringPtr(exhibit)
	rec.CreatedBy = createdBy.Int64
	if err := json.Unmarshal([]byte(impacts), &rec.ImpactTypes); err != nil {
		return nil, fmt.Errorf("decode impact types for record %d: %w", rec.ID, err)
	}
	return &rec, nil
}
