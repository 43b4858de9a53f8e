package records

import (
	"context"
	"iter"
	"strings"

	"trustlog/core/errs"
	"trustlog/core/store"
)

const (
	DefaultSortBy    = "date_of_incident"
	DefaultSortOrder = "desc"
)

var SortKeys = []string{"date_of_incident", "category", "created_at"}

type Filter struct {
	Category  string
	StartDate string
	EndDate   string
}

type Sort struct {
	By   string
	Desc bool
}

// ParseFilter validates the optional date bounds. A start after the end is
// legal and matches nothing.
func ParseFilter(category, start, end string) (Filter, error) {
	f := Filter{
		Category:  strings.TrimSpace(category),
		StartDate: strings.TrimSpace(start),
		EndDate:   strings.TrimSpace(end),
	}
	if f.StartDate != "" && !ValidDate(f.StartDate) {
		return Filter{}, errs.Validation("start_date must be YYYY-MM-DD")
	}
	if f.EndDate != "" && !ValidDate(f.EndDate) {
		return Filter{}, errs.Validation("end_date must be YYYY-MM-DD")
	}
	return f, nil
}

// ParseSort applies the date_of_incident desc default to empty values.
func ParseSort(by, order string) (Sort, error) {
	by = strings.TrimSpace(by)
	if by == "" {
		by = DefaultSortBy
	}
	valid := false
	for _, k := range SortKeys {
		if k == by {
			valid = true
			break
		}
	}
	if !valid {
		return Sort{}, errs.Validation("invalid sort_by column: %s", by)
	}
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc":
		return Sort{By: by, Desc: true}, nil
	case "asc":
		return Sort{By: by}, nil
	}
	return Sort{}, errs.Validation("invalid sort_order: %s", order)
}

func DefaultSort() Sort {
	return Sort{By: DefaultSortBy, Desc: true}
}

// Engine answers read requests. Every call hits the store; nothing is cached.
type Engine struct {
	records store.RecordsStore
}

func NewEngine(records store.RecordsStore) *Engine {
	return &Engine{records: records}
}

func (e *Engine) Query(ctx context.Context, f Filter, s Sort) ([]store.RecordSummary, error) {
	if s.By == "" {
		s = DefaultSort()
	}
	return e.records.ListRecords(ctx, store.RecordFilter{
		Category:  f.Category,
		StartDate: f.StartDate,
		EndDate:   f.EndDate,
	}, store.RecordSort{Column: s.By, Desc: s.Desc})
}

// Records yields the query result lazily. The query runs again on every range
// over the returned sequence.
func (e *Engine) Records(ctx context.Context, f Filter, s Sort) iter.Seq2[store.RecordSummary, error] {
	return func(yield func(store.RecordSummary, error) bool) {
		list, err := e.Query(ctx, f, s)
		if err != nil {
			yield(store.RecordSummary{}, err)
			return
		}
		for _, rec := range list {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (e *Engine) Get(ctx context.Context, id int64) (*store.Record, error) {
	rec, err := e.records.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.NotFound("log record not found")
	}
	return rec, nil
}

func (e *Engine) Attachments(ctx context.Context, recordID int64) ([]store.Attachment, error) {
	rec, err := e.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Attachments == nil {
		return []store.Attachment{}, nil
	}
	return rec.Attachments, nil
}

// AttachmentByStorageName resolves a download name to its metadata row.
func (e *Engine) AttachmentByStorageName(ctx context.Context, name string) (*store.Attachment, error) {
	att, err := e.records.GetAttachmentByStorageName(ctx, name)
	if err != nil {
		return nil, err
	}
	if att == nil {
		return nil, errs.NotFound("attachment not found")
	}
	return att, nil
}
