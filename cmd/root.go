package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the apiserver binary.
var rootCmd = &cobra.Command{
	Use:   "apiserver",
	Short: "threadline shop backend",
	Long:  "Backend API for the threadline shop: accounts, authentication and the product catalog.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
