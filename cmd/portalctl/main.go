package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Diagnostics for the HR portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		checkConfigCmd(),
		testConnectionCmd(),
		navCmd(),
		guardCmd(),
	)
	return root
}

func okLine(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "ok    %s\n", fmt.Sprintf(format, args...))
}

func failLine(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s\n", fmt.Sprintf(format, args...))
}
