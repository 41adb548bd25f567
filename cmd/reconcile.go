package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Clean up resources left by failed or interrupted operations",
	Long: `Reconcile tears down leftovers of failed installs and uninstalls,
releases port allocations whose module is gone, and removes route units
that no running module owns. Modules with an operation in flight are skipped.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

var reconcileOutput string

func init() {
	addOutputFlag(reconcileCmd, &reconcileOutput)
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	asJSON, err := wantJSON(reconcileOutput)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, recErr := a.Supervisor.Reconcile(cmd.Context())
	if report == nil {
		return recErr
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if err := writeJSON(out, report); err != nil {
			return err
		}
		return recErr
	}

	if report.Clean() && len(report.Skipped) == 0 {
		logSuccess("Nothing to reconcile")
		return recErr
	}

	for _, id := range report.TornDown {
		fmt.Fprintf(out, "torn down: %s\n", id)
	}
	modules := make([]string, 0, len(report.ReleasedPorts))
	for id := range report.ReleasedPorts {
		modules = append(modules, id)
	}
	sort.Strings(modules)
	for _, id := range modules {
		fmt.Fprintf(out, "released ports: %s (%d)\n", id, report.ReleasedPorts[id])
	}
	for _, id := range report.RemovedRoutes {
		fmt.Fprintf(out, "removed route: %s\n", id)
	}
	for _, id := range report.Skipped {
		logWarning("Skipped %s: operation in progress", id)
	}
	failed := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		logWarning("Could not reconcile %s: %s", id, report.Failed[id])
	}

	return recErr
}
