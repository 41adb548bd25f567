package route

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// MockController implements Controller for testing. When Dir is set,
// every successful Reload records a snapshot of the unit files the proxy
// would now be serving.
type MockController struct {
	mu sync.Mutex

	Dir string

	ValidateErr error
	ReloadErr   error

	// ValidateFunc, when set, replaces ValidateErr.
	ValidateFunc func() error

	Validations int
	Reloads     int
	Snapshots   []map[string]string
}

// NewMockController creates a MockController watching dir.
func NewMockController(dir string) *MockController {
	return &MockController{Dir: dir}
}

func (m *MockController) Validate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Validations++
	if m.ValidateFunc != nil {
		return m.ValidateFunc()
	}
	return m.ValidateErr
}

func (m *MockController) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reloads++
	if m.ReloadErr != nil {
		return m.ReloadErr
	}
	if m.Dir != "" {
		m.Snapshots = append(m.Snapshots, snapshotDir(m.Dir))
	}
	return nil
}

// SetReloadErr sets the error returned by subsequent reloads.
func (m *MockController) SetReloadErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReloadErr = err
}

// SetValidateErr sets the error returned by subsequent validations.
func (m *MockController) SetValidateErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidateErr = err
}

// LastSnapshot returns the unit set observed by the latest successful reload.
func (m *MockController) LastSnapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Snapshots) == 0 {
		return nil
	}
	return m.Snapshots[len(m.Snapshots)-1]
}

// ReloadCount returns how many reloads were attempted.
func (m *MockController) ReloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Reloads
}

// snapshotDir reads the *.conf files nginx would include.
func snapshotDir(dir string) map[string]string {
	out := make(map[string]string)
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+unitSuffix))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		out[filepath.Base(path)] = string(data)
	}
	return out
}

var _ Controller = (*MockController)(nil)
