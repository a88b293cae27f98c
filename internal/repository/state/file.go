package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/domain/deployment"
)

// Repository defines persistence operations for apply records.
type Repository interface {
	Record(ctx context.Context, project string) (*deployment.Record, error)
	Save(ctx context.Context, record *deployment.Record) error
	All(ctx context.Context) ([]*deployment.Record, error)
}

// FileRepository persists apply records to a JSON file on disk, keyed by
// project name.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when no record exists for a project.
	ErrNotFound = errors.New("record not found")
	// errNilRecord is returned when a nil record is saved.
	errNilRecord = errors.New("record is not set")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Record reads the apply record of one project.
func (r *FileRepository) Record(_ context.Context, project string) (*deployment.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}

	record, found := records[project]
	if !found {
		return nil, fmt.Errorf("%s: %w", project, ErrNotFound)
	}

	return record.Clone(), nil
}

// Save upserts the record for its project.
func (r *FileRepository) Save(_ context.Context, record *deployment.Record) error {
	if record == nil {
		return errNilRecord
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}

	records[record.Project] = record.Clone()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}

// All returns every record, ordered by project name.
func (r *FileRepository) All(_ context.Context) ([]*deployment.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}

	result := make([]*deployment.Record, 0, len(records))
	for _, record := range records {
		result = append(result, record.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Project < result[j].Project
	})

	return result, nil
}

// load reads the state file, treating an absent file as an empty registry.
// Callers must hold the mutex.
func (r *FileRepository) load() (map[string]*deployment.Record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]*deployment.Record), nil
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	records := make(map[string]*deployment.Record)
	if err = json.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return records, nil
}
