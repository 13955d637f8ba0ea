package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - will be set at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cabinet",
		Short: "Cabinet dynamic collection runtime",
		Long: `Cabinet loads declarative collection and action definitions and serves
them through a generic CRUD+action API with field-level access control.`,
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(newCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cabinet %s (%s)\n", Version, GitCommit)
	},
}
