// Package storage persists named JSON buckets on disk. Each bucket is
// one Data/<name>.json document holding a flat key-value object, which
// keeps the files hand-editable and diffable.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"botweave/internal/log"
)

// nameRe restricts bucket names to letters, digits, and underscores so
// they always map to a safe file name inside the data directory.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// FileStore is a bucket store backed by one JSON file per bucket. Every
// operation holds that bucket's mutex for its full read-modify-write
// cycle, so concurrent workflow steps cannot clobber each other.
type FileStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a store rooted at baseDir. The directory itself
// is created lazily on the first write.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex guarding one bucket, creating it on first use.
func (s *FileStore) lock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.baseDir, name+".json")
}

func validateName(name string) error {
	if name == "" || !nameRe.MatchString(name) {
		return fmt.Errorf("invalid storage name %q, only letters, digits, and underscores are allowed", name)
	}
	return nil
}

// load reads one bucket document. A missing file is an empty bucket. A
// corrupt document is logged and treated as empty instead of wedging
// every workflow that touches the bucket.
func (s *FileStore) load(name string) (map[string]any, error) {
	data, err := os.ReadFile(s.path(name)) //nolint:gosec // name is validated against nameRe
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read storage %s: %w", name, err)
	}

	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn(log.CatStorage, "storage file corrupt, starting empty", "name", name, "error", err.Error())
		return map[string]any{}, nil
	}
	return doc, nil
}

func (s *FileStore) save(name string, doc map[string]any) error {
	if err := os.MkdirAll(s.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create storage dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage %s: %w", name, err)
	}
	if err := os.WriteFile(s.path(name), data, 0o600); err != nil {
		return fmt.Errorf("failed to write storage %s: %w", name, err)
	}
	return nil
}

// Get returns the value stored under key, reporting whether it exists.
func (s *FileStore) Get(name, key string) (any, bool, error) {
	if err := validateName(name); err != nil {
		return nil, false, err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(name)
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

// Set writes value under key and persists the bucket.
func (s *FileStore) Set(name, key string, value any) error {
	if err := validateName(name); err != nil {
		return err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(name)
	if err != nil {
		return err
	}
	doc[key] = value
	return s.save(name, doc)
}

// Delete removes key and returns the removed value. Deleting an absent
// key is not an error and does not rewrite the file.
func (s *FileStore) Delete(name, key string) (any, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(name)
	if err != nil {
		return nil, err
	}
	v, ok := doc[key]
	if !ok {
		return nil, nil
	}
	delete(doc, key)
	if err := s.save(name, doc); err != nil {
		return nil, err
	}
	return v, nil
}

// Exists reports whether key is present in the bucket.
func (s *FileStore) Exists(name, key string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(name)
	if err != nil {
		return false, err
	}
	_, ok := doc[key]
	return ok, nil
}

// Keys returns the bucket's keys in sorted order.
func (s *FileStore) Keys(name string) ([]string, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	doc, err := s.load(name)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// All returns the full bucket contents.
func (s *FileStore) All(name string) (map[string]any, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	return s.load(name)
}

// Clear resets the bucket to an empty document. The file is kept on
// disk so a cleared bucket still shows up in listings.
func (s *FileStore) Clear(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	return s.save(name, map[string]any{})
}

// List names every bucket that has a document on disk.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list storage dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		base := name[:len(name)-len(".json")]
		if nameRe.MatchString(base) {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}
