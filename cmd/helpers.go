package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/modhost/internal/app"
	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/health"
)

// appOptions are applied after the config when building the App.
// Tests use them to inject mock collaborators.
var appOptions []app.Option

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// loadConfig reads the host config named by --config, or defaults when
// the file does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to load %s", configPath), err)
	}
	return cfg, nil
}

// openApp loads the config and wires the application. Callers must Close it.
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	opts := append([]app.Option{app.WithConfig(cfg)}, appOptions...)
	return app.New(opts...)
}

// addOutputFlag registers -o/--output on cmd.
func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", "text", "Output format: text or json")
}

// wantJSON validates an --output value.
func wantJSON(format string) (bool, error) {
	switch format {
	case "text", "":
		return false, nil
	case "json":
		return true, nil
	default:
		return false, errors.New(errors.ExitValidation, fmt.Sprintf("unknown output format %q (use text or json)", format))
	}
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatStatus(status health.Status) string {
	switch status {
	case health.StatusHealthy:
		return "✓ healthy"
	case health.StatusUnhealthy:
		return "⚠ unhealthy"
	case health.StatusStarting:
		return "… starting"
	case health.StatusStopped:
		return "● stopped"
	default:
		return string(status)
	}
}

func boolStatus(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
