package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/modhost/internal/health"
	"github.com/firefly-engineering/modhost/internal/store"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List modules",
	RunE:  runPs,
}

var (
	psAll    bool
	psOutput string
)

func init() {
	psCmd.Flags().BoolVarP(&psAll, "all", "a", false, "Include released modules")
	addOutputFlag(psCmd, &psOutput)
	rootCmd.AddCommand(psCmd)
}

func runPs(cmd *cobra.Command, args []string) error {
	asJSON, err := wantJSON(psOutput)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.Supervisor.List(cmd.Context())
	if err != nil {
		return err
	}

	var shown []store.ModuleRecord
	for _, rec := range records {
		if psAll || rec.State != store.StateReleased {
			shown = append(shown, rec)
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if shown == nil {
			shown = []store.ModuleRecord{}
		}
		return writeJSON(out, shown)
	}

	if len(shown) == 0 {
		logInfo("No modules found. Install one with: modhost install -f <descriptor.yaml>")
		return nil
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Modules (%d)", len(shown))))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tIMAGE\tPORTS\tROUTE\tSTATE\tSTATUS")
	fmt.Fprintln(w, "------\t-----\t-----\t-----\t-----\t------")

	for _, rec := range shown {
		route := "-"
		if rec.Route != nil && rec.State == store.StateRunning {
			route = rec.Route.PathPrefix
		}
		status := health.Summary(rec.State, false, false, nil)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ModuleID, rec.Image, formatPorts(rec.ActivePorts()), route, rec.State, formatStatus(status))
	}

	return w.Flush()
}

func formatPorts(ports []store.PortAllocation) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, strconv.Itoa(p.ExternalPort)+"->"+strconv.Itoa(p.InternalPort))
	}
	return strings.Join(parts, ",")
}
