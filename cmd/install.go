package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/errors"
	"github.com/firefly-engineering/modhost/internal/logging"
)

var installCmd = &cobra.Command{
	Use:   "install [module-id]",
	Short: "Install a module and publish its route",
	Long: `Install a module from a YAML descriptor or from flags.

  modhost install -f wiki.yaml
  modhost install wiki --image ghcr.io/example/wiki:1.4 -p 8080 --capability websocket`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

var (
	installFile         string
	installImage        string
	installPorts        []string
	installRoutePort    int
	installCapabilities []string
	installEnv          []string
)

func init() {
	installCmd.Flags().StringVarP(&installFile, "file", "f", "", "Module descriptor (YAML)")
	installCmd.Flags().StringVar(&installImage, "image", "", "Container image")
	installCmd.Flags().StringSliceVarP(&installPorts, "port", "p", nil, "Container port to publish (repeatable)")
	installCmd.Flags().IntVar(&installRoutePort, "route-port", 0, "Container port the route forwards to (default: lowest port)")
	installCmd.Flags().StringSliceVar(&installCapabilities, "capability", nil, "Route capability: http or websocket (repeatable)")
	installCmd.Flags().StringSliceVarP(&installEnv, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	desc, err := buildDescriptor(args)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logInfo("Installing module %s (%s)...", desc.ID, desc.Image)

	rec, err := a.Supervisor.Install(cmd.Context(), *desc)
	if err != nil {
		if secondary := errors.SecondaryOf(err); secondary != nil {
			logWarning("Rollback incomplete, run 'modhost reconcile': %v", secondary)
		}
		return err
	}

	logSuccess("Module %s installed", rec.ModuleID)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Container: %s (%s)\n", rec.ContainerName, rec.ContainerID)
	fmt.Fprintf(out, "Network: %s\n", rec.Network)
	for _, p := range rec.ActivePorts() {
		fmt.Fprintf(out, "Port: %d -> %d/tcp\n", p.ExternalPort, p.InternalPort)
	}
	if rec.Route != nil {
		base := strings.TrimSuffix(a.Config.Proxy.PublicURL, "/")
		fmt.Fprintf(out, "Route: %s%s\n", base, rec.Route.PathPrefix)
		fmt.Fprintf(out, "Health: %s%s\n", base, rec.Route.HealthPath)
	}
	return nil
}

// buildDescriptor reads --file or assembles a descriptor from flags.
// A positional id overrides or fills in the descriptor's id.
func buildDescriptor(args []string) (*config.Descriptor, error) {
	var desc *config.Descriptor
	if installFile != "" {
		d, err := config.LoadDescriptor(installFile)
		if err != nil {
			return nil, errors.ValidationFailed(installFile, err)
		}
		desc = d
	} else {
		desc = &config.Descriptor{}
	}

	if len(args) == 1 {
		if desc.ID != "" && desc.ID != args[0] {
			return nil, errors.New(errors.ExitValidation,
				fmt.Sprintf("module id %q does not match descriptor id %q", args[0], desc.ID))
		}
		desc.ID = args[0]
	}
	if installImage != "" {
		desc.Image = installImage
	}
	if len(installPorts) > 0 {
		desc.Ports = installPorts
	}
	if installRoutePort != 0 {
		desc.RoutePort = installRoutePort
	}
	if len(installCapabilities) > 0 {
		desc.Capabilities = installCapabilities
	}
	for _, kv := range installEnv {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, errors.New(errors.ExitValidation, fmt.Sprintf("invalid --env %q: expected KEY=VALUE", kv))
		}
		if desc.Env == nil {
			desc.Env = make(map[string]string)
		}
		desc.Env[key] = value
	}

	if desc.ID == "" {
		return nil, errors.New(errors.ExitValidation, "module id is required (argument or descriptor id)")
	}
	logging.Debug("install descriptor", "id", desc.ID, "image", desc.Image, "ports", desc.Ports)
	return desc, nil
}
