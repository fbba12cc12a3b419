// Package tunecache persists autotune winners as one JSON file per (tuner name, identity).
//
// Layout: <dir>/<name>/<id>.json, where each component is the value reduced to file-safe
// characters plus a short hash of the raw value. The real name and id are stored inside the
// file and checked on load.
package tunecache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/samcharles93/autotune/internal/logger"
	"github.com/samcharles93/autotune/internal/tune"
)

// FormatVersion is the on-disk version. Files with another version are rejected.
const FormatVersion = 1

// EnvDir overrides the default cache directory.
const EnvDir = "AUTOTUNE_CACHE_DIR"

// ErrCorruptCache is returned when a cache file cannot be decoded.
var ErrCorruptCache = errors.New("tunecache: corrupt cache file")

// File is the content of one cache file.
type File struct {
	Version int                    `json:"version"`
	Name    string                 `json:"name"`
	ID      string                 `json:"id"`
	Session string                 `json:"session"`
	Entries map[string]tune.Record `json:"entries"`
}

// FileInfo describes a cache file for listing.
type FileInfo struct {
	Path    string
	Name    string
	ID      string
	Session string
	Entries int
	Size    int64
	ModTime time.Time
}

// Store is a tune.Store backed by JSON files. It is safe for concurrent use within a process;
// across processes writers are serialized with an advisory lock where the platform has one.
type Store struct {
	dir     string
	session string
	log     logger.Logger

	mu sync.Mutex
}

var _ tune.Store = (*Store)(nil)

// DefaultDir returns $AUTOTUNE_CACHE_DIR, or the autotune directory under the user cache dir.
func DefaultDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvDir)); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "autotune")
	}
	return filepath.Join(base, "autotune")
}

// New opens (creating it if needed) the cache directory dir.
func New(dir string, log logger.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("tunecache: empty cache directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "tunecache: create %s", dir)
	}
	if log == nil {
		log = logger.Default()
	}
	s := &Store{
		dir:     dir,
		session: uuid.NewString(),
	}
	s.log = log.With("cache_dir", dir, "session", s.session)
	return s, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Session identifies this Store instance in the files it writes.
func (s *Store) Session() string { return s.session }

func (s *Store) path(name, id string) string {
	return filepath.Join(s.dir, component(name), component(id)+".json")
}

// Load returns the records of (name, id). A missing file is an empty cache.
func (s *Store) Load(name, id string) (map[string]tune.Record, error) {
	f, err := ReadFile(s.path(name, id))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]tune.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	if f.Name != name || f.ID != id {
		s.log.Warn("ignoring cache file of another tuner", "path", s.path(name, id), "file_name", f.Name, "file_id", f.ID)
		return map[string]tune.Record{}, nil
	}
	return f.Entries, nil
}

// Save sets the record of key and rewrites the file atomically.
func (s *Store) Save(name, id, key string, rec tune.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(name, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "tunecache: create %s", filepath.Dir(path))
	}
	unlock, err := lockFile(path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	// Merge with what other processes wrote since we loaded.
	f, err := ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		f = nil
	case errors.Is(err, ErrCorruptCache):
		s.log.Warn("overwriting corrupt cache file", "path", path, "error", err)
		f = nil
	default:
		return err
	}
	if f != nil && (f.Name != name || f.ID != id) {
		s.log.Warn("replacing cache file of another tuner", "path", path, "file_name", f.Name, "file_id", f.ID)
		f = nil
	}
	if f == nil {
		f = &File{Entries: make(map[string]tune.Record)}
	}
	f.Version = FormatVersion
	f.Name = name
	f.ID = id
	f.Session = s.session
	f.Entries[key] = rec

	if err := writeFile(path, f); err != nil {
		return err
	}
	s.log.Debug("saved autotune record", "tuner", name, "id", id, "key", key, "index", rec.Index)
	return nil
}

// List describes every cache file, sorted by name then id. Unreadable files are skipped
// with a warning.
func (s *Store) List() ([]FileInfo, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*", "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "tunecache: list")
	}
	infos := make([]FileInfo, 0, len(paths))
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		f, err := ReadFile(p)
		if err != nil {
			s.log.Warn("skipping unreadable cache file", "path", p, "error", err)
			continue
		}
		infos = append(infos, FileInfo{
			Path:    p,
			Name:    f.Name,
			ID:      f.ID,
			Session: f.Session,
			Entries: len(f.Entries),
			Size:    st.Size(),
			ModTime: st.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Name != infos[j].Name {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// Clear removes the files of tuner name, or the whole cache when name is empty.
// It returns the number of cache files removed.
func (s *Store) Clear(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.dir, "*", "*.json")
	if name != "" {
		pattern = filepath.Join(s.dir, component(name), "*.json")
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return 0, errors.Wrap(err, "tunecache: clear")
	}
	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, errors.Wrapf(err, "tunecache: remove %s", p)
		}
		_ = os.Remove(p + ".lock")
		removed++
	}
	s.log.Info("cleared autotune cache", "tuner", name, "files", removed)
	return removed, nil
}

// ReadFile decodes one cache file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(ErrCorruptCache, "%s: %v", path, err)
	}
	if f.Version != FormatVersion {
		return nil, errors.Wrapf(ErrCorruptCache, "%s: unsupported version %d", path, f.Version)
	}
	if f.Entries == nil {
		f.Entries = make(map[string]tune.Record)
	}
	return &f, nil
}

func writeFile(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, "tunecache: encode")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "tunecache: create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "tunecache: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "tunecache: close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "tunecache: rename to %s", path)
	}
	return nil
}

// component is the file-name component of a tuner name or identity. Values that sanitize
// alike still differ by their hash suffix.
func component(s string) string {
	sum := sha256.Sum256([]byte(s))
	return sanitize(s) + "-" + hex.EncodeToString(sum[:4])
}

// sanitize maps s to file-safe characters.
func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}
