package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/store"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List port allocations",
	RunE:  runPorts,
}

var (
	portsAll    bool
	portsModule string
	portsOutput string
)

func init() {
	portsCmd.Flags().BoolVarP(&portsAll, "all", "a", false, "Include released allocations")
	portsCmd.Flags().StringVarP(&portsModule, "module", "m", "", "Only show allocations of this module")
	addOutputFlag(portsCmd, &portsOutput)
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	asJSON, err := wantJSON(portsOutput)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var allocs []store.PortAllocation
	if portsAll || portsModule != "" {
		allocs, err = a.Store.ListAllocations(cmd.Context(), store.AllocationFilter{
			ModuleID:   portsModule,
			ActiveOnly: !portsAll,
		})
		if err != nil {
			err = errors.StoreError("list allocations", err)
		}
	} else {
		allocs, err = a.Allocator.ListActive(cmd.Context())
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if allocs == nil {
			allocs = []store.PortAllocation{}
		}
		return writeJSON(out, allocs)
	}

	from, to := a.Allocator.Range()
	fmt.Fprintln(out, titleStyle.Render("Port allocations")+" "+dimStyle.Render(fmt.Sprintf("(range %d-%d)", from, to)))
	if len(allocs) == 0 {
		logInfo("No port allocations")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXTERNAL\tINTERNAL\tMODULE\tALLOCATED\tSTATUS")
	fmt.Fprintln(w, "--------\t--------\t------\t---------\t------")
	for _, p := range allocs {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
			p.ExternalPort, p.InternalPort, p.ModuleID,
			p.AllocatedAt.Local().Format("2006-01-02 15:04:05"), p.Status)
	}
	return w.Flush()
}
