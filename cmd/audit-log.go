package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/modhost/internal/audit"
	"github.com/firefly-engineering/modhost/internal/errors"
)

var auditLogCmd = &cobra.Command{
	Use:   "audit-log <module-id>",
	Short: "Display the audit trail for a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditLog,
}

var auditLogJSONL bool

func init() {
	auditLogCmd.Flags().BoolVar(&auditLogJSONL, "jsonl", false, "Output events as JSON lines")
	rootCmd.AddCommand(auditLogCmd)
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := cfg.Paths()
	if err != nil {
		return errors.ConfigError("invalid state paths", err)
	}

	events, err := audit.NewLogger(paths.AuditDir).Events(name)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(events) == 0 {
		logInfo("No events found for module %s", name)
		return nil
	}

	out := cmd.OutOrStdout()
	for _, e := range events {
		if auditLogJSONL {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}
		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		if e.Details != "" {
			fmt.Fprintf(out, "[%s] %-19s %s (%s)\n", ts, e.Type, e.Module, e.Details)
		} else {
			fmt.Fprintf(out, "[%s] %-19s %s\n", ts, e.Type, e.Module)
		}
	}

	return nil
}
