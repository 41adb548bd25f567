package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/modhost/internal/errors"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <module-id>",
	Short: "Remove a module's route, container and ports",
	Args:  cobra.ExactArgs(1),
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	id := args[0]

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logInfo("Uninstalling module %s...", id)

	if err := a.Supervisor.Uninstall(cmd.Context(), id); err != nil {
		if errors.HasCode(err, errors.ExitReconciliationRequired) {
			logWarning("Some resources of %s were left behind; run 'modhost reconcile' to retry", id)
		}
		return err
	}

	logSuccess("Module %s uninstalled", id)
	return nil
}
