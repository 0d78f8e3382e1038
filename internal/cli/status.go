package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fmueller/dictado/internal/quota"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStatusCmd(app *appState) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's usage and plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := app.openCore()
			if err != nil {
				return err
			}

			status, err := core.quota.CheckQuota(cmd.Context(), core.settings.Identity)
			if err != nil {
				return friendly(err)
			}
			return writeStatus(cmd.OutOrStdout(), status, format)
		},
	}

	bindLoggingFlags(cmd, app)
	bindDataDirFlag(cmd, app)
	cmd.Flags().StringVar(&app.provider, "provider", app.provider, "Provider whose quota view to show: openai|groq|backend")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text|json|yaml")
	return cmd
}

type statusView struct {
	Plan             string  `json:"plan" yaml:"plan"`
	Allowed          bool    `json:"allowed" yaml:"allowed"`
	UsedMinutes      float64 `json:"usedMinutes" yaml:"used_minutes"`
	RemainingMinutes float64 `json:"remainingMinutes" yaml:"remaining_minutes"`
	DailyLimit       float64 `json:"dailyLimit" yaml:"daily_limit"`
}

func planName(status quota.Status) string {
	if status.Pro {
		return "pro"
	}
	return "free"
}

func writeStatus(w io.Writer, status quota.Status, format string) error {
	view := statusView{
		Plan:             planName(status),
		Allowed:          status.Allowed,
		UsedMinutes:      status.UsedMinutes,
		RemainingMinutes: status.RemainingMinutes,
		DailyLimit:       status.DailyLimit,
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(view)
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q (known formats: text, json, yaml)", format)
	}

	if status.Pro {
		fmt.Fprintln(w, "Plan:      Pro (unlimited)")
		fmt.Fprintf(w, "Used:      %.1f min today\n", status.UsedMinutes)
		return nil
	}
	fmt.Fprintln(w, "Plan:      Free")
	fmt.Fprintf(w, "Used:      %.1f of %.0f min today\n", status.UsedMinutes, status.DailyLimit)
	fmt.Fprintf(w, "Remaining: %.1f min\n", status.RemainingMinutes)
	if !status.Allowed {
		fmt.Fprintln(w, "Today's free minutes are used up. Run `dictado activate <license-key>` for unlimited use.")
	}
	return nil
}
