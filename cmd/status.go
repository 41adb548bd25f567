package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/modhost/internal/runtime"
)

var statusCmd = &cobra.Command{
	Use:   "status <module-id>",
	Short: "Show detailed status of a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var (
	statusProbe  bool
	statusOutput string
)

func init() {
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "Inspect the container and request the health path")
	addOutputFlag(statusCmd, &statusOutput)
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	asJSON, err := wantJSON(statusOutput)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Supervisor.Status(cmd.Context(), args[0], statusProbe)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, report)
	}

	rec := report.Module
	fmt.Fprintf(out, "Module: %s\n", rec.ModuleID)
	fmt.Fprintf(out, "Image: %s\n", rec.Image)
	fmt.Fprintf(out, "State: %s\n", rec.State)
	fmt.Fprintf(out, "Status: %s\n", formatStatus(report.Status))
	fmt.Fprintf(out, "Install ID: %s\n", rec.InstallID)
	if rec.ContainerName != "" {
		fmt.Fprintf(out, "Container: %s\n", rec.ContainerName)
	}
	if rec.Network != "" {
		fmt.Fprintf(out, "Network: %s\n", rec.Network)
	}
	for _, p := range rec.ActivePorts() {
		fmt.Fprintf(out, "Port: %d -> %d/tcp\n", p.ExternalPort, p.InternalPort)
	}
	if rec.Route != nil {
		fmt.Fprintf(out, "Route: %s -> %s\n", rec.Route.PathPrefix, rec.Route.Upstream())
	}
	fmt.Fprintf(out, "Installed: %s\n", rec.InstalledAt.Local().Format("2006-01-02 15:04:05"))
	if rec.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", rec.LastError)
	}

	if report.Probed {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Health Checks:")
		running := report.Container != nil && report.Container.Status == runtime.StatusRunning
		fmt.Fprintf(out, "  Container: %s\n", boolStatus(running))
		if running {
			fmt.Fprintf(out, "  Uptime: %s\n", report.Uptime)
		}
		fmt.Fprintf(out, "  Health endpoint: %s\n", boolStatus(report.ProbeError == ""))
		if report.ProbeError != "" {
			fmt.Fprintf(out, "  Error: %s\n", report.ProbeError)
		}
	}
	return nil
}
