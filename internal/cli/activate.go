package cli

import (
	"fmt"

	"github.com/fmueller/dictado/internal/config"
	"github.com/fmueller/dictado/internal/license"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newActivateCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <license-key>",
		Short: "Activate a license key on this device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := app.openCore()
			if err != nil {
				return err
			}

			key := license.Normalize(args[0])
			identity := core.settings.Identity

			// In backend mode the server owns the binding; the local copy
			// lets status and the offline check follow it.
			if core.remote != nil {
				if err := core.remote.Activate(cmd.Context(), key); err != nil {
					return friendly(err)
				}
				app.log().Debug("license activated on server", zap.String("identity", identity))
			}

			if err := core.licenses.Activate(cmd.Context(), identity, key); err != nil {
				return friendly(err)
			}

			saved, err := config.LoadSettings(core.paths.Settings)
			if err != nil {
				return err
			}
			saved.LicenseKey = key
			if err := saved.Save(core.paths.Settings); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "License activated. Enjoy unlimited transcription.")
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindDataDirFlag(cmd, app)
	return cmd
}

func newLicenseCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "License key administration",
	}

	var count int
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Print freshly minted license keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", count)
			}
			for i := 0; i < count; i++ {
				fmt.Fprintln(cmd.OutOrStdout(), license.Generate())
			}
			return nil
		},
	}
	generate.Flags().IntVarP(&count, "count", "n", 1, "Number of keys to generate")
	bindLoggingFlags(generate, app)

	cmd.AddCommand(generate)
	return cmd
}
