package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "execution-gateway",
	Short: "Multi-broker order execution gateway",
	Long: `Execution gateway that accepts trade orders over HTTP, queues them on a
rate-limited regular lane or a paced smart lane, and dispatches each one
through a pre-trade gate before routing it to the healthiest broker.

The gate checks feed health, price drift against the decision price,
account risk and guardrails. Every attempt is recorded.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Env file loaded before reading configuration")
}
