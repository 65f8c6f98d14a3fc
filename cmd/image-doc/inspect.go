package main

import (
	"github.com/spf13/cobra"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "validate <image>",
		Short: "Check an image and report what processing would do",
		Long: `Print a validation report for one image: file facts, dimensions, color
mode, EXIF, dominant colors and the resize plan. Nothing is written. Exit
status is 2 when the image cannot be processed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			report, valErr := a.coord.Validate(cmd.Context(), args[0])
			if err := output(cmd.OutOrStdout(), "", asYAML, report); err != nil {
				return err
			}
			return valErr
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print YAML instead of JSON")
	return cmd
}

func newFormatsCmd(g *globalFlags) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List accepted inputs, output formats and defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()
			return output(cmd.OutOrStdout(), "", asYAML, a.coord.Formats())
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print YAML instead of JSON")
	return cmd
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()
			return output(cmd.OutOrStdout(), "", true, a.cfg)
		},
	}
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			layout, err := a.layout()
			if err != nil {
				return err
			}
			info, err := layout.Info()
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), "", asYAML, info)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print YAML instead of JSON")
	return cmd
}
