package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/modhost/internal/route"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List published nginx route units",
	RunE:  runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.Supervisor.Routes()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logInfo("No routes published in %s", a.Paths.RoutesDir)
		return nil
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tPREFIX\tHEALTH\tUNIT")
	fmt.Fprintln(w, "------\t------\t------\t----")
	for _, id := range ids {
		unit, err := a.Publisher.UnitPath(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, route.PathPrefix(id), route.HealthPath(id), unit)
	}
	return w.Flush()
}
