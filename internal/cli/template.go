package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// TemplateCmd builds the template command group
func TemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage prompt templates",
	}
	cmd.AddCommand(
		templateListCmd(),
		templateAddCmd(),
		templateRenderCmd(),
		templateRmCmd(),
	)
	return cmd
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			tpls, err := app.templates().List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tpls) == 0 {
				fmt.Fprintln(out, "no templates")
				return nil
			}
			for _, tpl := range tpls {
				fmt.Fprintf(out, "%s\t%s\n", tpl.Name, truncate(tpl.Content, 60))
			}
			return nil
		},
	}
}

func templateAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <text>",
		Short: "Store a template; {name} placeholders are substituted on render",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.templates().Register(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored template %q\n", args[0])
			return nil
		},
	}
}

func templateRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render <name> [key=value...]",
		Short: "Render a template with the given variables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := make(map[string]string, len(args)-1)
			for _, pair := range args[1:] {
				key, value, ok := strings.Cut(pair, "=")
				if !ok || key == "" {
					return fmt.Errorf("invalid variable %q (want key=value)", pair)
				}
				vars[key] = value
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			rendered, err := app.templates().Render(cmd.Context(), args[0], vars)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
}

func templateRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.templates().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted template %q\n", args[0])
			return nil
		},
	}
}
