package cmd

import (
	"fmt"
	"strings"

	"github.com/mselser95/execution-gateway/internal/app"
	"github.com/mselser95/execution-gateway/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the execution gateway",
	Long: `Starts the execution gateway, which will:
1. Connect every broker in the registry (BROKERS_FILE, paper by default)
2. Stream ticks for FEED_INSTRUMENTS and any instrument an order names
3. Serve the order intake and control API under /api
4. Drain both queue lanes through the execution gate

Use --instruments to stream extra EXCHANGE:SYMBOL keys from startup.
Use --mode to override EXECUTION_MODE.`,
	RunE: runGateway,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceP("instruments", "i", nil, "Extra instruments to stream (EXCHANGE:SYMBOL)")
	runCmd.Flags().String("mode", "", "Execution mode override (DRY_RUN or LIVE)")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	mode, _ := cmd.Flags().GetString("mode")
	if mode != "" {
		cfg.ExecutionMode = strings.ToUpper(mode)
		err = cfg.Validate()
		if err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	// Create logger
	logger, err := config.NewLoggerWith(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	instruments, _ := cmd.Flags().GetStringSlice("instruments")

	// Create app with options
	opts := &app.Options{
		Instruments: instruments,
	}

	application, err := app.New(cfg, logger, opts)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")

	err := config.LoadDotEnv(envFile)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
