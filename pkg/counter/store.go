package counter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sasha-s/go-deadlock"
	"gopkg.in/yaml.v3"
)

// Store persists counter values between two plugin runs.
type Store interface {
	// Load returns the values saved by the previous run, an empty map if there was none.
	Load() (map[string]float64, error)
	// Save replaces the saved values.
	Save(values map[string]float64) error
}

// MemoryStore keeps values in memory only.
type MemoryStore struct {
	lock   deadlock.RWMutex
	values map[string]float64
}

// NewMemoryStore returns a MemoryStore with optional initial values.
func NewMemoryStore(initial map[string]float64) *MemoryStore {
	store := &MemoryStore{values: make(map[string]float64, len(initial))}
	for k, v := range initial {
		store.values[k] = v
	}

	return store
}

func (m *MemoryStore) Load() (map[string]float64, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	res := make(map[string]float64, len(m.values))
	for k, v := range m.values {
		res[k] = v
	}

	return res, nil
}

func (m *MemoryStore) Save(values map[string]float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.values = make(map[string]float64, len(values))
	for k, v := range values {
		m.values[k] = v
	}

	return nil
}

// FileStore keeps values in a yaml file.
type FileStore struct {
	lock deadlock.Mutex
	path string
}

// NewFileStore returns a FileStore for the given path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (f *FileStore) Path() string {
	return f.path
}

type stateFile struct {
	Counters map[string]float64 `yaml:"counters"`
}

func (f *FileStore) Load() (map[string]float64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]float64{}, nil
		}

		return nil, fmt.Errorf("read state file %s: %w", f.path, err)
	}

	state := stateFile{}
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", f.path, err)
	}
	if state.Counters == nil {
		state.Counters = map[string]float64{}
	}

	return state.Counters, nil
}

func (f *FileStore) Save(values map[string]float64) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	data, err := yaml.Marshal(stateFile{Counters: values})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	// write to a temp file first, so concurrent readers never see half written files
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("write state file %s: %w", f.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("write state file %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("write state file %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("write state file %s: %w", f.path, err)
	}

	return nil
}
