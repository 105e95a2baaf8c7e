package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hrportal.org/internal/guard"
	"hrportal.org/internal/hr"
	"hrportal.org/internal/nav"
)

func navCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nav <role>",
		Short: "Print the menu and landing dashboard a role gets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, ok := hr.ParseRole(args[0])
			if !ok {
				return fmt.Errorf("unknown role %q", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "role     %s (%s)\n", role, role.Label())
			v := nav.DashboardVariant(role)
			fmt.Fprintf(out, "variant  %s -> %s\n", v, nav.VariantHome(v))
			for _, e := range nav.Build(role) {
				fmt.Fprintf(out, "  %-16s %s\n", e.Name, e.Href)
			}
			fmt.Fprintf(out, "  %-16s %s\n", nav.Settings.Name, nav.Settings.Href)
			return nil
		},
	}
}

func guardCmd() *cobra.Command {
	var authenticated bool
	cmd := &cobra.Command{
		Use:   "guard <path>",
		Short: "Show what the route guard does with a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.HasPrefix(path, "/") {
				return fmt.Errorf("path must start with /: %q", path)
			}
			out := cmd.OutOrStdout()
			if guard.Excluded(path) {
				fmt.Fprintln(out, "excluded (no session handling)")
				return nil
			}
			d := guard.Decide(authenticated, path)
			if d.Allowed() {
				fmt.Fprintln(out, "allow")
				return nil
			}
			fmt.Fprintf(out, "redirect %s\n", d.Target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&authenticated, "authenticated", false, "decide for a signed-in user")
	return cmd
}
