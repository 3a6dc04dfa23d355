// Package cli implements the painter command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "painter",
	Short: "painter: fast neural style transfer",
	Long: `painter applies artistic styles to images with pretrained
fast-neural-style models. Weights are downloaded on first use.

Run 'painter serve' for the backend API and 'painter form' for the
browser front end.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
