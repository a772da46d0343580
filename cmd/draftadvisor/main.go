package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brensch/brawldraft/config"
	"github.com/brensch/brawldraft/logging"
)

var (
	configPath string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger *zap.SugaredLogger

	rootCmd = &cobra.Command{
		Use:   "draftadvisor",
		Short: "Pick and ban advice for ranked 3v3 drafts",
		Long: `draftadvisor builds brawler statistics from a battle log and uses them
to score picks and bans, predict win probability and run a tree search over
the rest of the draft.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(buildCmd, suggestCmd, searchCmd, serveCmd, configCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
		if err := c.Validate(); err != nil {
			return err
		}
	}
	l, err := logging.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	logger.Debugw("configuration loaded", "config", configPath, "cache", cfg.Paths.Cache)
	return nil
}
