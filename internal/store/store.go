// Package store provides checkpoint persistence and retrieval.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sevir/wappa/pkg/models"
)

// ErrNotFound is returned for unknown checkpoint IDs.
var ErrNotFound = errors.New("checkpoint not found")

// Store defines the interface for checkpoint storage.
type Store interface {
	Save(cp *models.Checkpoint) error
	Get(id string) (*models.Checkpoint, error)
	List(filter ListFilter) ([]*models.Checkpoint, error)
	Update(id string, fn func(cp *models.Checkpoint)) (*models.Checkpoint, error)
	Delete(id string) error
	Count() int
	Close() error
}

// ListFilter defines criteria for listing checkpoints.
type ListFilter struct {
	SessionID string
	Status    []models.CheckpointStatus
	Tags      []string
	Limit     int
	Offset    int
}

// FileStore implements Store using a JSON file for persistence. Records
// handed out are copies; mutate them through Update.
type FileStore struct {
	path        string
	checkpoints map[string]*models.Checkpoint
	mu          sync.RWMutex
	dirty       bool
	interval    time.Duration
	closeOnce   sync.Once
	closeCh     chan struct{}
	done        chan struct{}
}

// NewFileStore creates a new file-based store.
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	fs := &FileStore{
		path:        path,
		checkpoints: make(map[string]*models.Checkpoint),
		interval:    5 * time.Second,
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
	}

	if err := fs.load(); err != nil {
		return nil, err
	}

	go fs.backgroundSaver()

	return fs, nil
}

func (fs *FileStore) load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read store file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var checkpoints map[string]*models.Checkpoint
	if err := json.Unmarshal(data, &checkpoints); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	if checkpoints == nil {
		checkpoints = make(map[string]*models.Checkpoint)
	}

	fs.checkpoints = checkpoints
	return nil
}

func (fs *FileStore) save() error {
	fs.mu.RLock()
	data, err := json.MarshalIndent(fs.checkpoints, "", "  ")
	fs.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal checkpoints: %w", err)
	}

	tmpPath := fs.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func (fs *FileStore) backgroundSaver() {
	defer close(fs.done)

	ticker := time.NewTicker(fs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fs.mu.RLock()
			dirty := fs.dirty
			fs.mu.RUnlock()

			if dirty {
				if err := fs.save(); err == nil {
					fs.mu.Lock()
					fs.dirty = false
					fs.mu.Unlock()
				}
			}
		case <-fs.closeCh:
			fs.save()
			return
		}
	}
}

// Save stores or updates a checkpoint.
func (fs *FileStore) Save(cp *models.Checkpoint) error {
	if cp == nil || cp.ID == "" {
		return errors.New("checkpoint ID is required")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.checkpoints[cp.ID] = clone(cp)
	fs.dirty = true

	return nil
}

// Get retrieves a checkpoint by ID.
func (fs *FileStore) Get(id string) (*models.Checkpoint, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	cp, exists := fs.checkpoints[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return clone(cp), nil
}

// List retrieves checkpoints matching the filter, newest first.
func (fs *FileStore) List(filter ListFilter) ([]*models.Checkpoint, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	result := []*models.Checkpoint{}
	for _, cp := range fs.checkpoints {
		if matchesFilter(cp, filter) {
			result = append(result, clone(cp))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*models.Checkpoint{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

func matchesFilter(cp *models.Checkpoint, filter ListFilter) bool {
	if filter.SessionID != "" && cp.SessionID != filter.SessionID {
		return false
	}

	if len(filter.Status) > 0 {
		matched := false
		for _, s := range filter.Status {
			if cp.Status == s {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	// Every requested tag must be present.
	for _, want := range filter.Tags {
		found := false
		for _, tag := range cp.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// Update applies fn to the stored checkpoint under the store lock and
// returns a copy of the result.
func (fs *FileStore) Update(id string, fn func(cp *models.Checkpoint)) (*models.Checkpoint, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cp, exists := fs.checkpoints[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	fn(cp)
	cp.ID = id
	fs.dirty = true

	return clone(cp), nil
}

// Delete removes a checkpoint record by ID. The model file is untouched.
func (fs *FileStore) Delete(id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.checkpoints[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(fs.checkpoints, id)
	fs.dirty = true

	return nil
}

// Count returns the number of stored checkpoints.
func (fs *FileStore) Count() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.checkpoints)
}

// Close stops the background saver and waits for the final save.
func (fs *FileStore) Close() error {
	fs.closeOnce.Do(func() {
		close(fs.closeCh)
	})
	<-fs.done
	return nil
}

// Reload reloads the store from disk.
func (fs *FileStore) Reload() error {
	return fs.load()
}

// ForceSave immediately persists all checkpoints to disk.
func (fs *FileStore) ForceSave() error {
	fs.mu.Lock()
	fs.dirty = false
	fs.mu.Unlock()
	return fs.save()
}

func clone(cp *models.Checkpoint) *models.Checkpoint {
	c := *cp
	if cp.Tags != nil {
		c.Tags = append([]string(nil), cp.Tags...)
	}
	if cp.WrittenAt != nil {
		t := *cp.WrittenAt
		c.WrittenAt = &t
	}
	return &c
}
