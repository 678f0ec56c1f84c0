package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notnil/cannode/internal/config"
)

// NewPresetsCommand lists the presets or prints one as YAML.
func NewPresetsCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "presets [name]",
		Short: "List deployment presets or print one as a config file",
		Example: `  cannode presets
  cannode presets storm > storm.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range config.PresetNames() {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			f, err := config.Preset(args[0])
			if err != nil {
				return err
			}
			data, err := f.Marshal()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
}
