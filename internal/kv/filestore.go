package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultPollInterval = 500 * time.Millisecond

var errFileStoreClosed = errors.New("kv: file store closed")

// FileStore persists keys as a single JSON object on disk. Writes go through
// a temp file plus rename so a crashed writer never leaves a torn file.
// Watch polls the file's modification time and diffs against the last
// snapshot seen by this instance, so a store's own writes are not reported
// back to it (matching storage-event semantics).
type FileStore struct {
	path string
	poll time.Duration

	mu        sync.Mutex
	snapshot  map[string]string
	modTime   time.Time
	watchers  map[int]chan Change
	nextID    int
	closed    bool
	done      chan struct{}
	startPoll sync.Once
}

// NewFileStore opens (or creates) the JSON store at path. pollInterval
// controls how often Watch checks for external writes; zero selects the
// default of 500ms.
func NewFileStore(path string, pollInterval time.Duration) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("kv: file store path required")
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	s := &FileStore{
		path:     path,
		poll:     pollInterval,
		watchers: make(map[int]chan Change),
		done:     make(chan struct{}),
	}

	snapshot, modTime, err := s.load()
	if err != nil {
		return nil, err
	}
	s.snapshot = snapshot
	s.modTime = modTime

	return s, nil
}

// Get implements [Store].
func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errFileStoreClosed
	}
	if err := s.reloadLocked(); err != nil {
		return "", err
	}

	v, ok := s.snapshot[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements [Store].
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errFileStoreClosed
	}
	if err := s.reloadLocked(); err != nil {
		return err
	}

	s.snapshot[key] = value
	return s.flushLocked()
}

// Delete implements [Store]. Deleting an absent key is a no-op.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errFileStoreClosed
	}
	if err := s.reloadLocked(); err != nil {
		return err
	}

	if _, ok := s.snapshot[key]; !ok {
		return nil
	}
	delete(s.snapshot, key)
	return s.flushLocked()
}

// Watch implements [Store]. The first Watch call starts a single polling
// goroutine shared by all watchers of this instance.
func (s *FileStore) Watch(ctx context.Context) (<-chan Change, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errFileStoreClosed
	}
	id := s.nextID
	s.nextID++
	ch := make(chan Change, watchBuffer)
	s.watchers[id] = ch
	s.mu.Unlock()

	s.startPoll.Do(func() {
		go s.pollLoop()
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
		s.mu.Unlock()
	}()

	return ch, nil
}

// Close implements [Store].
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	for id, w := range s.watchers {
		delete(s.watchers, id)
		close(w)
	}
	return nil
}

func (s *FileStore) pollLoop() {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.checkFile()
		}
	}
}

func (s *FileStore) checkFile() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	info, err := os.Stat(s.path)
	if err != nil || !info.ModTime().After(s.modTime) {
		return
	}

	previous := s.snapshot
	fresh, modTime, err := s.load()
	if err != nil {
		return
	}
	s.snapshot = fresh
	s.modTime = modTime

	now := time.Now()
	for key, value := range fresh {
		if old, ok := previous[key]; !ok || old != value {
			s.broadcastLocked(Change{Key: key, Value: value, At: now})
		}
	}
	for key := range previous {
		if _, ok := fresh[key]; !ok {
			s.broadcastLocked(Change{Key: key, Deleted: true, At: now})
		}
	}
}

func (s *FileStore) broadcastLocked(change Change) {
	for _, w := range s.watchers {
		select {
		case w <- change:
		default:
		}
	}
}

// reloadLocked refreshes the snapshot when another process wrote the file
// since we last read it, so read-modify-write cycles do not clobber
// external updates.
func (s *FileStore) reloadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("kv: stat %s: %w", s.path, err)
	}
	if !info.ModTime().After(s.modTime) {
		return nil
	}

	fresh, modTime, err := s.load()
	if err != nil {
		return err
	}
	s.snapshot = fresh
	s.modTime = modTime
	return nil
}

func (s *FileStore) load() (map[string]string, time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("kv: read %s: %w", s.path, err)
	}

	out := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			// A torn or hand-edited file is treated as empty rather than
			// poisoning every subsequent read.
			return make(map[string]string), time.Time{}, nil
		}
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return out, time.Time{}, nil
	}
	return out, info.ModTime(), nil
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".cryptosync-*")
	if err != nil {
		return fmt.Errorf("kv: temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kv: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv: rename %s: %w", s.path, err)
	}

	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}
