package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/getmockd/resourcebind/pkg/cli/internal/output"
	"github.com/getmockd/resourcebind/pkg/cliconfig"
)

// configView is the printable form of the resolved configuration.
type configView struct {
	URL       string            `json:"url" yaml:"url"`
	Token     string            `json:"token,omitempty" yaml:"token,omitempty"`
	Username  string            `json:"username,omitempty" yaml:"username,omitempty"`
	Timeout   string            `json:"timeout" yaml:"timeout"`
	LogLevel  string            `json:"logLevel" yaml:"logLevel"`
	LogFormat string            `json:"logFormat" yaml:"logFormat"`
	JSON      bool              `json:"json" yaml:"json"`
	Sources   map[string]string `json:"sources" yaml:"sources,omitempty"`
}

func newConfigView(cfg *cliconfig.Config) configView {
	v := configView{
		URL:       cfg.URL,
		Username:  cfg.Username,
		Timeout:   cfg.Timeout.String(),
		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,
		JSON:      cfg.JSON,
		Sources:   cfg.Sources,
	}
	if cfg.Token != "" {
		v.Token = maskToken(cfg.Token)
	}
	return v
}

// maskToken keeps the last four characters of a token.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect rbind configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration after merging defaults, the global
and local config files, environment variables and flags. Each value is
listed with the source it came from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := newConfigView(a.cfg)
			out := cmd.OutOrStdout()
			if a.cfg.JSON {
				return output.JSON(out, view)
			}
			sources := view.Sources
			view.Sources = nil
			if err := output.YAML(out, view); err != nil {
				return err
			}
			fmt.Fprintln(out, "# sources:")
			for _, k := range slices.Sorted(maps.Keys(sources)) {
				fmt.Fprintf(out, "#   %s: %s\n", k, sources[k])
			}
			return nil
		},
	})
	return cmd
}
