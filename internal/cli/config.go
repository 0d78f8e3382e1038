package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fmueller/dictado/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change saved settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved settings with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, path, err := app.loadSavedSettings()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(settings.Redacted())
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting (" + strings.Join(config.SettingKeys(), ", ") + ")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, path, err := app.loadSavedSettings()
			if err != nil {
				return err
			}
			if err := settings.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := settings.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s.\n", args[0])
			return nil
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := app.paths()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), paths.Settings)
			return nil
		},
	}

	for _, sub := range []*cobra.Command{show, set, pathCmd} {
		bindDataDirFlag(sub, app)
		cmd.AddCommand(sub)
	}
	return cmd
}

// loadSavedSettings reads the settings file without the per-run flag
// overrides so that saving never persists them.
func (a *appState) loadSavedSettings() (config.Settings, string, error) {
	paths, err := a.paths()
	if err != nil {
		return config.Settings{}, "", err
	}
	if err := os.MkdirAll(paths.DataDir, 0o700); err != nil {
		return config.Settings{}, "", fmt.Errorf("create data directory %s: %w", paths.DataDir, err)
	}
	settings, err := config.LoadSettings(paths.Settings)
	if err != nil {
		return config.Settings{}, "", err
	}
	return settings, paths.Settings, nil
}
