package main

import (
	"github.com/spf13/cobra"
	"github.com/uptend/dispatch/internal/config"
	"github.com/uptend/dispatch/pkg/log"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "dispatch-api",
	Short: "Job dispatch and no-show recovery service",
	Long: `dispatch-api offers booked jobs to nearby pros, resolves their claims and
reassigns jobs whose pro does not show up. It is configured from DISPATCH_* and DB_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
}

// setup reads the configuration and installs the global logger. The returned func flushes and restores it.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel), cfg.Service.LogFormat)
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
