package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const UploadsDir = "uploads"

// Manager persists uploads below <root>/uploads and hands back web-relative
// paths ("uploads/...") for storage in the database.
type Manager struct {
	root       string
	nowFunc    func() time.Time
	suffixFunc func() string
}

func NewManager(publicRoot string) (*Manager, error) {
	publicRoot = strings.TrimSpace(publicRoot)
	if publicRoot == "" {
		return nil, fmt.Errorf("public root is required")
	}
	abs, err := filepath.Abs(publicRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve public root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, UploadsDir), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir uploads dir: %w", err)
	}
	return &Manager{
		root:       abs,
		nowFunc:    time.Now,
		suffixFunc: randomSuffix,
	}, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (m *Manager) Root() string {
	return m.root
}

// SaveSingle validates f and writes it under kind's directory.
func (m *Manager) SaveSingle(f File, kind Kind, entityID int64) (string, error) {
	if err := validateOrError(f, kind); err != nil {
		return "", err
	}
	dir, err := m.ensureDir(kind, entityID)
	if err != nil {
		return "", err
	}
	name := m.fileName(kind, entityID, -1, extension(f.Name()))
	return m.write(f, kind, dir, name)
}

// SaveMultiple validates the whole batch before writing anything. If a write
// fails, files already written by this call are removed.
func (m *Manager) SaveMultiple(files []File, kind Kind, entityID int64) ([]string, error) {
	for _, f := range files {
		if err := validateOrError(f, kind); err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, nil
	}
	dir, err := m.ensureDir(kind, entityID)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(files))
	for i, f := range files {
		name := m.fileName(kind, entityID, i, extension(f.Name()))
		rel, err := m.write(f, kind, dir, name)
		if err != nil {
			_ = m.DeleteMultiple(out)
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// DeleteSingle removes a stored file. Empty paths and missing files are not
// errors.
func (m *Manager) DeleteSingle(rel string) error {
	if strings.TrimSpace(rel) == "" {
		return nil
	}
	abs, err := m.AbsPath(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

func (m *Manager) DeleteMultiple(rels []string) error {
	var errs []error
	for _, rel := range rels {
		if err := m.DeleteSingle(rel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteFolder removes every file an entity owns for kind: the whole
// {kind}-{id} directory for per-entity kinds, otherwise the entity's files in
// the shared kind directory.
func (m *Manager) DeleteFolder(kind Kind, entityID int64) error {
	rule, ok := rules[kind]
	if !ok {
		return fmt.Errorf("unknown upload kind %q", kind)
	}
	kindDir := filepath.Join(m.root, UploadsDir, rule.Dir)
	if rule.PerEntity {
		if err := os.RemoveAll(filepath.Join(kindDir, entityPrefix(kind, entityID))); err != nil {
			return fmt.Errorf("remove %s folder: %w", kind, err)
		}
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(kindDir, entityPrefix(kind, entityID)+"-*"))
	if err != nil {
		return fmt.Errorf("glob %s files: %w", kind, err)
	}
	var errs []error
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Replace deletes oldPath and saves f in its place. The delete is not undone
// if the save fails.
func (m *Manager) Replace(oldPath string, f File, kind Kind, entityID int64) (string, error) {
	if err := m.DeleteSingle(oldPath); err != nil {
		return "", err
	}
	return m.SaveSingle(f, kind, entityID)
}

// AbsPath maps a stored relative path to the filesystem. Paths that leave the
// uploads tree are rejected with ErrInvalidPath.
func (m *Manager) AbsPath(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(strings.TrimSpace(rel)))
	clean = strings.TrimPrefix(clean, "/")
	if !strings.HasPrefix(clean, UploadsDir+"/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(m.root, filepath.FromSlash(clean)), nil
}

func entityPrefix(kind Kind, entityID int64) string {
	return fmt.Sprintf("%s-%d", kind, entityID)
}

func relDir(kind Kind, entityID int64) string {
	rule := rules[kind]
	dir := path.Join(UploadsDir, rule.Dir)
	if rule.PerEntity {
		dir = path.Join(dir, entityPrefix(kind, entityID))
	}
	return dir
}

func (m *Manager) ensureDir(kind Kind, entityID int64) (string, error) {
	dir := relDir(kind, entityID)
	if err := os.MkdirAll(filepath.Join(m.root, filepath.FromSlash(dir)), 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// fileName builds {kind}-{id}-{ms}[-{index}]-{random}.{ext}; index < 0 omits
// the index segment.
func (m *Manager) fileName(kind Kind, entityID int64, index int, ext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s-%d", entityPrefix(kind, entityID), m.nowFunc().UnixMilli())
	if index >= 0 {
		fmt.Fprintf(&b, "-%d", index)
	}
	fmt.Fprintf(&b, "-%s.%s", m.suffixFunc(), ext)
	return b.String()
}

func (m *Manager) write(f File, kind Kind, dir, name string) (string, error) {
	rel := path.Join(dir, name)
	abs := filepath.Join(m.root, filepath.FromSlash(rel))

	src, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", f.Name(), err)
	}
	defer src.Close()

	dst, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", rel, err)
	}

	limit := rules[kind].MaxBytes()
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	closeErr := dst.Close()
	if err == nil && n > limit {
		err = &ValidationError{File: f.Name(), Kind: kind, Message: fmt.Sprintf("File too large. Maximum size: %dMB", rules[kind].MaxSizeMB)}
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(abs)
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			return "", err
		}
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return rel, nil
}
