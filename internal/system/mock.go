package system

import (
	"context"
	"strings"
	"sync"
)

// MockExecutor is a scripted CommandExecutor for tests.
type MockExecutor struct {
	mu sync.Mutex

	// Commands records every executed command in order.
	Commands []MockCommand

	// Responses maps a command line prefix ("docker", "docker inspect",
	// "nginx -t -c") to its result. The longest matching prefix wins.
	Responses map[string]MockResponse

	// Handler, when set, is consulted before Responses.
	Handler func(name string, args []string) (MockResponse, bool)

	// DefaultResponse is used when nothing else matches.
	DefaultResponse MockResponse
}

// MockCommand records an executed command.
type MockCommand struct {
	Name string
	Args []string

	// HasDeadline reports whether the caller bounded the command.
	HasDeadline bool
}

// String renders the command as it would be typed.
func (c MockCommand) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// MockResponse is the scripted result of a command.
type MockResponse struct {
	Output []byte
	Err    error
}

// NewMockExecutor creates an executor that succeeds with no output
// unless scripted otherwise.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Responses: make(map[string]MockResponse),
	}
}

// AddResponse scripts the result for commands starting with pattern.
func (m *MockExecutor) AddResponse(pattern string, output []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[pattern] = MockResponse{Output: output, Err: err}
}

func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	_, hasDeadline := ctx.Deadline()
	rec := MockCommand{Name: name, Args: append([]string(nil), args...), HasDeadline: hasDeadline}

	m.mu.Lock()
	m.Commands = append(m.Commands, rec)
	handler := m.Handler
	m.mu.Unlock()

	if handler != nil {
		if resp, ok := handler(name, args); ok {
			return resp.Output, resp.Err
		}
	}

	resp := m.match(rec)
	return resp.Output, resp.Err
}

func (m *MockExecutor) match(cmd MockCommand) MockResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Try the full line first, then drop trailing args one at a time.
	words := append([]string{cmd.Name}, cmd.Args...)
	for n := len(words); n > 0; n-- {
		if resp, ok := m.Responses[strings.Join(words[:n], " ")]; ok {
			return resp
		}
	}
	return m.DefaultResponse
}

// LastCommand returns the most recently executed command.
func (m *MockExecutor) LastCommand() (MockCommand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return MockCommand{}, false
	}
	return m.Commands[len(m.Commands)-1], true
}

// CommandsFor returns the recorded invocations of name whose first
// argument is sub. An empty sub matches every invocation of name.
func (m *MockExecutor) CommandsFor(name, sub string) []MockCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCommand
	for _, c := range m.Commands {
		if c.Name == name && (sub == "" || (len(c.Args) > 0 && c.Args[0] == sub)) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded commands. Scripted responses are kept.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = nil
}

var _ CommandExecutor = (*MockExecutor)(nil)
