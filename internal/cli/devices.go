package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/fmueller/dictado/internal/record"
	"github.com/spf13/cobra"
)

func newDevicesCmd(app *appState) *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List recording devices and backend diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backends := record.DefaultBackends(runtime.GOOS)
			if len(backends) == 0 {
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
			if only != "" && !isAutoBackend(only) {
				filtered, err := record.SelectBackend(backends, only)
				if err != nil {
					return err
				}
				backends = []record.Backend{filtered}
			}

			writeDevices(cmd.Context(), cmd.OutOrStdout(), backends)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	cmd.Flags().StringVar(&only, "backend", "", "Only list devices of this backend")
	return cmd
}

// writeDevices prints one section per backend. Listing failures are reported
// inline so one broken tool does not hide the others.
func writeDevices(ctx context.Context, w io.Writer, backends []record.Backend) {
	for _, backend := range backends {
		fmt.Fprintf(w, "== %s ==\n", backend.Name())

		var body string
		switch out, err := listDevices(ctx, backend); {
		case err != nil:
			body = "failed to list devices: " + err.Error()
		case out == "":
			body = "no output"
		default:
			body = out
		}
		fmt.Fprintf(w, "%s\n\n", body)
	}
}

func listDevices(ctx context.Context, backend record.Backend) (string, error) {
	if !backend.Available() {
		return "not available on PATH", nil
	}
	out, err := backend.ListDevices(ctx)
	return strings.TrimSpace(out), err
}

func isAutoBackend(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), "auto")
}
