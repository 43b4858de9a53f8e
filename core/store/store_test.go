package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"trustlog/config"
	"trustlog/core/utils"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "test.db")}
	db, err := NewDB(cfg, utils.NewNopLogger())
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(context.Background(), db, utils.NewNopLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func storageNameIssued(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow(db.rebind(`SELECT COUNT(*) FROM storage_names WHERE name=?`), name).Scan(&n); err != nil {
		t.Fatalf("ledger lookup: %v", err)
	}
	return n > 0
}

func strPtr(s string) *string { return &s }

func newRecord(date, category string) *Record {
	return &Record{
		DateOfIncident: date,
		Category:       category,
		Description:    "something happened",
		ImpactTypes:    []string{"Emotional Impact"},
	}
}

func TestRebindPostgres(t *testing.T) {
	d := &DB{Dialect: DialectPostgres}
	got := d.rebind("SELECT * FROM t WHERE a=? AND b=?")
	if got != "SELECT * FROM t WHERE a=$1 AND b=$2" {
		t.Fatalf("unexpected rebind: %s", got)
	}
	if (&DB{}).rebind("a=?") != "a=?" {
		t.Fatalf("sqlite must keep placeholders")
	}
}

func TestMigrationsVersion(t *testing.T) {
	db := openTestDB(t)
	v, err := SchemaVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v < 1 {
		t.Fatalf("expected applied migration, got %d", v)
	}
}

func TestUsersCreateConflict(t *testing.T) {
	ctx := context.Background()
	users := NewUsersStore(openTestDB(t))
	u := &User{Username: "alex", PasswordHash: "h"}
	if _, err := users.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := users.Create(ctx, &User{Username: "alex", PasswordHash: "h2"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := users.FindByUsername(ctx, "alex")
	if err != nil || got == nil {
		t.Fatalf("find: %v %v", got, err)
	}
	if got.ID != u.ID || len(got.Roles) != 1 || got.Roles[0] != "owner" || !got.Active {
		t.Fatalf("unexpected user: %+v", got)
	}
	missing, err := users.FindByUsername(ctx, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown user, got %+v %v", missing, err)
	}
}

func TestSessionsExpiryAndPurge(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := NewUsersStore(db)
	u := &User{Username: "sam", PasswordHash: "h"}
	if _, err := users.Create(ctx, u); err != nil {
		t.Fatalf("user: %v", err)
	}
	sessions := NewSessionsStore(db)
	now := time.Now().UTC()
	live := &SessionRecord{ID: "live", UserID: u.ID, Username: u.Username, Roles: []string{"owner"}, CSRFToken: "c1",
		CreatedAt: now, LastSeenAt: now, ExpiresAt: now.Add(time.Hour)}
	dead := &SessionRecord{ID: "dead", UserID: u.ID, Username: u.Username, Roles: []string{"owner"}, CSRFToken: "c2",
		CreatedAt: now.Add(-2 * time.Hour), LastSeenAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	for _, s := range []*SessionRecord{live, dead} {
		if err := sessions.SaveSession(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := sessions.GetSession(ctx, "live")
	if err != nil || got == nil || got.CSRFToken != "c1" {
		t.Fatalf("expected live session, got %+v %v", got, err)
	}
	if got, _ := sessions.GetSession(ctx, "dead"); got != nil {
		t.Fatalf("expired session must not be returned")
	}
	n, err := sessions.PurgeExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("expected one purged session, got %d %v", n, err)
	}
	if err := sessions.DeleteSession(ctx, "live"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := sessions.GetSession(ctx, "live"); got != nil {
		t.Fatalf("deleted session still present")
	}
}

func TestSaveRecordWithAttachments(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := NewRecordsStore(db)
	rec := newRecord("2024-03-01", "Alcohol Use")
	rec.TimeOfIncident = strPtr("18:30")
	w := &RecordWrite{Record: rec, NewAttachments: []Attachment{
		{OriginalFilename: "a.pdf", StorageName: "n1.pdf", Extension: "pdf", ContentType: "application/pdf", SizeBytes: 3},
		{OriginalFilename: "b.txt", StorageName: "n2.txt", Extension: "txt", ContentType: "text/plain", SizeBytes: 5},
	}}
	hookCalled := false
	if _, err := st.SaveRecord(ctx, w, func([]Attachment) error { hookCalled = true; return nil }); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !hookCalled || rec.ID == 0 {
		t.Fatalf("expected hook and id, got %v %d", hookCalled, rec.ID)
	}
	got, err := st.GetRecord(ctx, rec.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if len(got.Attachments) != 2 || got.TimeOfIncident == nil || *got.TimeOfIncident != "18:30" || got.ImpactTypes[0] != "Emotional Impact" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !storageNameIssued(t, db, "n1.pdf") {
		t.Fatalf("expected storage name in ledger")
	}
}

func TestSaveRecordHookFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	st := NewRecordsStore(db)
	rec := newRecord("2024-03-01", "Other")
	w := &RecordWrite{Record: rec, NewAttachments: []Attachment{
		{OriginalFilename: "a.pdf", StorageName: "x.pdf", Extension: "pdf", ContentType: "application/pdf", SizeBytes: 1},
	}}
	boom := errors.New("promote failed")
	if _, err := st.SaveRecord(ctx, w, func([]Attachment) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	list, err := st.ListRecords(ctx, RecordFilter{}, RecordSort{Column: "date_of_incident", Desc: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rollback left %d records", len(list))
	}
	if storageNameIssued(t, db, "x.pdf") {
		t.Fatalf("ledger entry survived rollback")
	}
}

func TestStorageNamesNeverReused(t *testing.T) {
	ctx := context.Background()
	st := NewRecordsStore(openTestDB(t))
	first := &RecordWrite{Record: newRecord("2024-01-01", "Other"), NewAttachments: []Attachment{
		{OriginalFilename: "a.txt", StorageName: "same.txt", Extension: "txt", ContentType: "text/plain"},
	}}
	if _, err := st.SaveRecord(ctx, first, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := st.DeleteRecord(ctx, first.Record.ID, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	second := &RecordWrite{Record: newRecord("2024-01-02", "Other"), NewAttachments: []Attachment{
		{OriginalFilename: "b.txt", StorageName: "same.txt", Extension: "txt", ContentType: "text/plain"},
	}}
	if _, err := st.SaveRecord(ctx, second, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for reused storage name, got %v", err)
	}
}

func TestUpdateRemovesAttachments(t *testing.T) {
	ctx := context.Background()
	st := NewRecordsStore(openTestDB(t))
	w := &RecordWrite{Record: newRecord("2024-01-01", "Other"), NewAttachments: []Attachment{
		{OriginalFilename: "a.txt", StorageName: "u1.txt", Extension: "txt", ContentType: "text/plain"},
		{OriginalFilename: "b.txt", StorageName: "u2.txt", Extension: "txt", ContentType: "text/plain"},
	}}
	if _, err := st.SaveRecord(ctx, w, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	other := &RecordWrite{Record: newRecord("2024-01-05", "Other"), NewAttachments: []Attachment{
		{OriginalFilename: "c.txt", StorageName: "u3.txt", Extension: "txt", ContentType: "text/plain"},
	}}
	if _, err := st.SaveRecord(ctx, other, nil); err != nil {
		t.Fatalf("save other: %v", err)
	}

	upd := &RecordWrite{Record: w.Record, RemoveAttachmentIDs: []int64{other.NewAttachments[0].ID}}
	if _, err := st.SaveRecord(ctx, upd, nil); !errors.Is(err, ErrAttachmentMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	w.Record.Description = "edited"
	upd = &RecordWrite{Record: w.Record, RemoveAttachmentIDs: []int64{w.NewAttachments[0].ID}}
	removed, err := st.SaveRecord(ctx, upd, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(removed) != 1 || removed[0].StorageName != "u1.txt" {
		t.Fatalf("unexpected removed set: %+v", removed)
	}
	got, _ := st.GetRecord(ctx, w.Record.ID)
	if got.Description != "edited" || len(got.Attachments) != 1 || got.Attachments[0].StorageName != "u2.txt" {
		t.Fatalf("unexpected record after update: %+v", got)
	}

	missing := &RecordWrite{Record: &Record{ID: 9999, DateOfIncident: "2024-01-01", Category: "Other", Description: "x", ImpactTypes: []string{"Other"}}}
	if _, err := st.SaveRecord(ctx, missing, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListRecordsFilterSortAndCounts(t *testing.T) {
	ctx := context.Background()
	st := NewRecordsStore(openTestDB(t))
	seed := []struct {
		date, cat string
		files     int
	}{
		{"2024-01-10", "Alcohol Use", 2},
		{"2024-01-05", "Other", 0},
		{"2024-01-10", "Other", 1},
		{"2024-02-01", "Alcohol Use", 0},
	}
	n := 0
	for _, s := range seed {
		w := &RecordWrite{Record: newRecord(s.date, s.cat)}
		for i := 0; i < s.files; i++ {
			n++
			w.NewAttachments = append(w.NewAttachments, Attachment{
				OriginalFilename: "f.txt", StorageName: "s" + string(rune('a'+n)) + ".txt", Extension: "txt", ContentType: "text/plain",
			})
		}
		if _, err := st.SaveRecord(ctx, w, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := st.ListRecords(ctx, RecordFilter{}, RecordSort{Column: "date_of_incident", Desc: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 || all[0].DateOfIncident != "2024-02-01" || all[3].DateOfIncident != "2024-01-05" {
		t.Fatalf("unexpected order: %+v", all)
	}
	// equal dates tie-break on id ascending
	if all[1].ID > all[2].ID {
		t.Fatalf("tie-break must be id ascending")
	}
	if all[1].AttachmentCount != 2 || all[2].AttachmentCount != 1 {
		t.Fatalf("unexpected counts: %d %d", all[1].AttachmentCount, all[2].AttachmentCount)
	}

	filtered, err := st.ListRecords(ctx, RecordFilter{Category: "Alcohol Use", StartDate: "2024-01-10", EndDate: "2024-01-10"}, RecordSort{Column: "created_at"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(filtered) != 1 || filtered[0].AttachmentCount != 2 {
		t.Fatalf("unexpected filtered result: %+v", filtered)
	}

	empty, err := st.ListRecords(ctx, RecordFilter{StartDate: "2025-01-01", EndDate: "2024-01-01"}, RecordSort{Column: "category"})
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty result, got %v %v", empty, err)
	}
	if _, err := st.ListRecords(ctx, RecordFilter{}, RecordSort{Column: "id; DROP TABLE"}); err == nil {
		t.Fatalf("unknown sort column must fail")
	}
}

func TestDeleteRecordHookFailureKeepsRows(t *testing.T) {
	ctx := context.Background()
	st := NewRecordsStore(openTestDB(t))
	w := &RecordWrite{Record: newRecord("2024-01-01", "Other"), NewAttachments: []Attachment{
		{OriginalFilename: "a.txt", StorageName: "d1.txt", Extension: "txt", ContentType: "text/plain"},
	}}
	if _, err := st.SaveRecord(ctx, w, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	boom := errors.New("trash failed")
	_, err := st.DeleteRecord(ctx, w.Record.ID, func(atts []Attachment) error {
		if len(atts) != 1 {
			t.Fatalf("hook expected one attachment, got %d", len(atts))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if got, _ := st.GetRecord(ctx, w.Record.ID); got == nil || len(got.Attachments) != 1 {
		t.Fatalf("record must survive failed delete")
	}
	if _, err := st.DeleteRecord(ctx, 424242, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteAttachment(t *testing.T) {
	ctx := context.Background()
	st := NewRecordsStore(openTestDB(t))
	w := &RecordWrite{Record: newRecord("2024-01-01", "Other"), NewAttachments: []Attachment{
		{OriginalFilename: "a.txt", StorageName: "da.txt", Extension: "txt", ContentType: "text/plain"},
	}}
	if _, err := st.SaveRecord(ctx, w, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	attID := w.NewAttachments[0].ID
	att, err := st.DeleteAttachment(ctx, attID, nil)
	if err != nil || att.StorageName != "da.txt" {
		t.Fatalf("delete: %+v %v", att, err)
	}
	if _, err := st.DeleteAttachment(ctx, attID, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	refs, err := st.ReferencedStorageNames(ctx)
	if err != nil || len(refs) != 0 {
		t.Fatalf("expected no referenced names, got %v %v", refs, err)
	}
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	audit := NewAuditStore(openTestDB(t))
	if err := audit.Log(ctx, "alex", "record.create", "id=1"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := audit.Log(ctx, "alex", "record.delete", "id=1"); err != nil {
		t.Fatalf("log: %v", err)
	}
	list, err := audit.List(ctx, 10)
	if err != nil || len(list) != 2 || list[0].Action != "record.delete" {
		t.Fatalf("unexpected audit list: %+v %v", list, err)
	}
}
