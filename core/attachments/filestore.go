// Package attachments keeps uploaded evidence files on disk. Files live under
// root/<first two chars of name>/<name>; uploads are written to a staging area
// first and promoted only when the owning database transaction is about to
// commit.
package attachments

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"trustlog/core/errs"
	"trustlog/core/utils"

	"github.com/gofrs/uuid/v5"
)

const (
	stagingDir = ".staging"
	trashDir   = ".trash"
)

var (
	ErrTooLarge = errors.New("attachment exceeds upload limit")

	storageNamePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.[a-z0-9]{1,16}$`)
)

type FileStore struct {
	root    string
	allowed map[string]struct{}
	logger  *utils.Logger
}

// Staged is an upload written to the staging area but not yet visible under
// its final path.
type Staged struct {
	Name     string
	Size     int64
	path     string
	promoted bool
}

func New(root string, allowed []string, logger *utils.Logger) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("attachments: storage dir is required")
	}
	for _, dir := range []string{root, filepath.Join(root, stagingDir), filepath.Join(root, trashDir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("attachments: create %s: %w", dir, err)
		}
	}
	set := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			set[ext] = struct{}{}
		}
	}
	return &FileStore{root: root, allowed: set, logger: logger}, nil
}

// Extension returns the lowercased extension after the last dot, or "".
func Extension(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx+1:])
}

func (s *FileStore) Allowed(filename string) bool {
	ext := Extension(filename)
	if ext == "" {
		return false
	}
	_, ok := s.allowed[ext]
	return ok
}

func (s *FileStore) AllowedExtensions() []string {
	out := make([]string, 0, len(s.allowed))
	for ext := range s.allowed {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.root, name[:2], name)
}

func newStorageName(ext string) string {
	return uuid.Must(uuid.NewV4()).String() + "." + ext
}

// Stage writes data into the staging area under a fresh storage name.
// maxBytes <= 0 disables the size limit.
func (s *FileStore) Stage(data io.Reader, filename string, maxBytes int64) (*Staged, error) {
	if !s.Allowed(filename) {
		return nil, errs.AttachmentRejected(filename)
	}
	name := newStorageName(Extension(filename))
	tmp := filepath.Join(s.root, stagingDir, name)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", filename, err)
	}
	src := data
	if maxBytes > 0 {
		src = io.LimitReader(data, maxBytes+1)
	}
	size, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("stage %s: %w", filename, err)
	}
	if maxBytes > 0 && size > maxBytes {
		f.Close()
		os.Remove(tmp)
		return nil, ErrTooLarge
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("stage %s: fsync: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("stage %s: %w", filename, err)
	}
	return &Staged{Name: name, Size: size, path: tmp}, nil
}

// Promote moves a staged file to its final location. It refuses to replace an
// existing file.
func (s *FileStore) Promote(st *Staged) error {
	if st == nil || st.promoted {
		return nil
	}
	dst := s.path(st.Name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("promote %s: %w", st.Name, fs.ErrExist)
	}
	if err := os.Rename(st.path, dst); err != nil {
		return fmt.Errorf("promote %s: %w", st.Name, err)
	}
	st.promoted = true
	return nil
}

// PromoteAll promotes every staged file, undoing the ones already moved if any
// promotion fails.
func (s *FileStore) PromoteAll(staged []*Staged) error {
	for _, st := range staged {
		if err := s.Promote(st); err != nil {
			s.Discard(staged)
			return err
		}
	}
	return nil
}

// Discard removes staged files and any that were already promoted.
func (s *FileStore) Discard(staged []*Staged) {
	for _, st := range staged {
		if st == nil {
			continue
		}
		target := st.path
		if st.promoted {
			target = s.path(st.Name)
		}
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Errorf("attachments: discard %s: %v", st.Name, err)
		}
		st.promoted = false
	}
}

// Store writes data directly under a new storage name.
func (s *FileStore) Store(data io.Reader, filename string) (string, error) {
	st, err := s.Stage(data, filename, 0)
	if err != nil {
		return "", err
	}
	if err := s.Promote(st); err != nil {
		s.Discard([]*Staged{st})
		return "", err
	}
	return st.Name, nil
}

func (s *FileStore) Open(name string) (*os.File, error) {
	if !storageNamePattern.MatchString(name) {
		return nil, errs.NotFound("attachment not found")
	}
	f, err := os.Open(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound("attachment not found")
		}
		return nil, err
	}
	return f, nil
}

func (s *FileStore) Retrieve(name string) ([]byte, error) {
	f, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *FileStore) Delete(name string) error {
	if !storageNamePattern.MatchString(name) {
		return errs.NotFound("attachment not found")
	}
	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.NotFound("attachment not found")
		}
		return err
	}
	return nil
}

// TrashBatch holds hard links to files that are about to be removed. The
// live files stay readable until Purge, which runs only after the owning
// transaction has committed.
type TrashBatch struct {
	store  *FileStore
	dir    string
	linked []string
}

// Trash links the named files into a per-batch trash directory without
// touching the live paths. Names whose file is already missing are skipped.
// On error the partial batch is dropped.
func (s *FileStore) Trash(names []string) (*TrashBatch, error) {
	b := &TrashBatch{store: s, dir: filepath.Join(s.root, trashDir, uuid.Must(uuid.NewV4()).String())}
	if err := os.MkdirAll(b.dir, 0o750); err != nil {
		return nil, err
	}
	for _, name := range names {
		if !storageNamePattern.MatchString(name) {
			continue
		}
		err := os.Link(s.path(name), filepath.Join(b.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			_ = b.Restore()
			return nil, fmt.Errorf("trash %s: %w", name, err)
		}
		b.linked = append(b.linked, name)
	}
	return b, nil
}

// Restore abandons the batch. Live files were never moved, so only the trash
// links are dropped.
func (b *TrashBatch) Restore() error {
	if b == nil {
		return nil
	}
	b.linked = nil
	return os.RemoveAll(b.dir)
}

// Purge unlinks the live files of the batch and then the batch itself.
func (b *TrashBatch) Purge() {
	if b == nil {
		return
	}
	for _, name := range b.linked {
		if err := os.Remove(b.store.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.store.logger.Errorf("attachments: purge %s: %v", name, err)
		}
	}
	if err := os.RemoveAll(b.dir); err != nil {
		b.store.logger.Errorf("attachments: purge trash %s: %v", b.dir, err)
	}
	b.linked = nil
}

type SweepResult struct {
	Orphans int
	Staged  int
	Trashed int
}

// Sweep deletes stored files not present in referenced and staging or trash
// entries older than maxAge.
func (s *FileStore) Sweep(referenced map[string]struct{}, maxAge time.Duration, now time.Time) (SweepResult, error) {
	var res SweepResult
	cutoff := now.Add(-maxAge)
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return res, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		switch e.Name() {
		case stagingDir:
			res.Staged += removeOlder(filepath.Join(s.root, stagingDir), cutoff, s.logger)
			continue
		case trashDir:
			res.Trashed += removeOlder(filepath.Join(s.root, trashDir), cutoff, s.logger)
			continue
		}
		shard := filepath.Join(s.root, e.Name())
		files, err := os.ReadDir(shard)
		if err != nil {
			return res, err
		}
		for _, f := range files {
			if f.IsDir() || !storageNamePattern.MatchString(f.Name()) {
				continue
			}
			if _, ok := referenced[f.Name()]; ok {
				continue
			}
			// Files promoted by an in-flight write are not referenced until
			// commit; leave anything newer than the cutoff.
			if info, err := f.Info(); err == nil && info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(shard, f.Name())); err != nil {
				s.logger.Errorf("attachments: sweep %s: %v", f.Name(), err)
				continue
			}
			res.Orphans++
		}
	}
	return res, nil
}

func removeOlder(dir string, cutoff time.Time, logger *utils.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			logger.Errorf("attachments: remove %s: %v", e.Name(), err)
			continue
		}
		n++
	}
	return n
}
