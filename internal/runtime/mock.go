package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockRuntime is a mock implementation of Runtime for testing
type MockRuntime struct {
	mu sync.RWMutex

	// Containers tracks the state of mock containers by id
	Containers map[string]*ContainerInfo

	// Created records the options of every successful Create, by id
	Created map[string]CreateOptions

	// Errors allows injecting errors for specific operations
	// ("create", "start", "stop", "remove", "inspect")
	Errors map[string]error

	// StartStatus is the status a container reports after Start.
	// Defaults to StatusRunning; StatusStopped simulates a crash on boot.
	StartStatus ContainerStatus

	// StartGate, when set, blocks Start until it is closed or ctx ends.
	StartGate chan struct{}

	// CallLog records all method calls for verification
	CallLog []MockCall

	nextID int
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMockRuntime creates a new mock runtime
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Containers:  make(map[string]*ContainerInfo),
		Created:     make(map[string]CreateOptions),
		Errors:      make(map[string]error),
		StartStatus: StatusRunning,
		CallLog:     make([]MockCall, 0),
	}
}

func (m *MockRuntime) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockRuntime) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// SetStartStatus sets the status containers report after Start.
func (m *MockRuntime) SetStartStatus(status ContainerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartStatus = status
}

// AddContainer adds a container to the mock
func (m *MockRuntime) AddContainer(id, name string, status ContainerStatus, networks ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := append([]string(nil), networks...)
	sort.Strings(sorted)
	m.Containers[id] = &ContainerInfo{
		ID:       id,
		Name:     name,
		Status:   status,
		Networks: sorted,
	}
}

// GetCalls returns all recorded calls
func (m *MockRuntime) GetCalls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]MockCall, len(m.CallLog))
	copy(result, m.CallLog)
	return result
}

// GetCallsFor returns calls for a specific method
func (m *MockRuntime) GetCallsFor(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			result = append(result, call)
		}
	}
	return result
}

// ContainerCount returns how many containers exist.
func (m *MockRuntime) ContainerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Containers)
}

// lookup finds a container by id or name. Caller holds m.mu.
func (m *MockRuntime) lookup(handle string) *ContainerInfo {
	if c, ok := m.Containers[handle]; ok {
		return c
	}
	for _, c := range m.Containers {
		if c.Name == handle {
			return c
		}
	}
	return nil
}

// Name returns the runtime identifier
func (m *MockRuntime) Name() string {
	return "mock"
}

func (m *MockRuntime) Create(ctx context.Context, opts CreateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Create", opts)

	if err := m.Errors["create"]; err != nil {
		return "", err
	}
	if m.lookup(opts.Name) != nil {
		return "", fmt.Errorf("container name %q already in use", opts.Name)
	}

	m.nextID++
	id := fmt.Sprintf("mock-%04d", m.nextID)
	var networks []string
	if opts.Network != "" {
		networks = []string{opts.Network}
	}
	m.Containers[id] = &ContainerInfo{
		ID:       id,
		Name:     opts.Name,
		Status:   StatusCreated,
		Networks: networks,
	}
	m.Created[id] = opts
	return id, nil
}

func (m *MockRuntime) Start(ctx context.Context, handle string) error {
	m.mu.Lock()
	m.record("Start", handle)
	gate := m.StartGate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.Errors["start"]; err != nil {
		return err
	}
	c := m.lookup(handle)
	if c == nil {
		return fmt.Errorf("no such container: %s", handle)
	}
	c.Status = m.StartStatus
	c.StartedAt = time.Now().UTC().Format(time.RFC3339)
	if c.Status.Exited() {
		c.ExitCode = 1
	}
	return nil
}

func (m *MockRuntime) Stop(ctx context.Context, handle string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Stop", handle, timeout)

	if err := m.Errors["stop"]; err != nil {
		return err
	}
	if c := m.lookup(handle); c != nil {
		c.Status = StatusStopped
	}
	return nil
}

func (m *MockRuntime) Remove(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Remove", handle)

	if err := m.Errors["remove"]; err != nil {
		return err
	}
	if c := m.lookup(handle); c != nil {
		delete(m.Containers, c.ID)
	}
	return nil
}

func (m *MockRuntime) Inspect(ctx context.Context, handle string) (*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Inspect", handle)

	if err := m.Errors["inspect"]; err != nil {
		return nil, err
	}
	c := m.lookup(handle)
	if c == nil {
		return &ContainerInfo{Name: handle, Status: StatusNotFound}, nil
	}
	info := *c
	info.Networks = append([]string(nil), c.Networks...)
	return &info, nil
}

// Ensure MockRuntime implements Runtime
var _ Runtime = (*MockRuntime)(nil)
