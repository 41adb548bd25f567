package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/firefly-engineering/modhost/internal/store"
)

// Status represents the health status of a module
type Status string

const (
	StatusStarting  Status = "starting"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusStopped   Status = "stopped"

	// DefaultProbeTimeout bounds a single health request.
	DefaultProbeTimeout = 5 * time.Second
)

// Prober checks a module's health endpoint through the proxy.
type Prober interface {
	Probe(ctx context.Context, healthPath string) error
}

// HTTPProber issues GET requests against the public proxy URL.
type HTTPProber struct {
	client  *http.Client
	baseURL string
}

// NewHTTPProber creates a prober for the proxy at baseURL.
func NewHTTPProber(baseURL string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Probe succeeds when GET <baseURL><healthPath> answers below 400.
func (p *HTTPProber) Probe(ctx context.Context, healthPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+healthPath, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("health endpoint returned %s", resp.Status)
	}
	return nil
}

// Summary maps a persisted state and optional live observations to a
// Status. probed is false when no live check was made; containerRunning
// and probeErr are ignored then.
func Summary(state store.ModuleState, probed, containerRunning bool, probeErr error) Status {
	switch state {
	case store.StatePending, store.StatePortsAllocated, store.StateContainerStarting:
		return StatusStarting
	case store.StateRunning:
		if !probed {
			return StatusHealthy
		}
		if !containerRunning {
			return StatusStopped
		}
		if probeErr != nil {
			return StatusUnhealthy
		}
		return StatusHealthy
	default:
		return StatusStopped
	}
}

// Uptime returns time since startedAt in human-readable format.
func Uptime(startedAt string, now time.Time) string {
	if startedAt == "" || strings.HasPrefix(startedAt, "0001-01-01") {
		return "unknown"
	}

	// Try common timestamp formats
	var t time.Time
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999 -0700 MST",
	}

	for _, format := range formats {
		if parsed, err := time.Parse(format, startedAt); err == nil {
			t = parsed
			break
		}
	}

	if t.IsZero() {
		return startedAt // Return raw value if can't parse
	}

	return formatDuration(now.Sub(t))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
