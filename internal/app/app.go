// Package app wires configuration, the trained engine and the outer
// surfaces (web, Slack, scheduler) behind the vargento command line.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vargento/internal/config"
	"vargento/internal/httpx"
)

// Version is overridden at build time with -ldflags "-X vargento/internal/app.Version=...".
var Version = "dev"

type cli struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
}

func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "vargento",
		Short: "Incident decision assistant for video referees",
		Long: `vargento learns from a spreadsheet of past incidents and their decisions,
then suggests the decision for a new incident description together with a
confidence, similar past incidents and a downloadable PDF summary.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default: $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		c.serveCommand(),
		c.trainCommand(),
		c.predictCommand(),
		c.digestCommand(),
		c.pruneCommand(),
		versionCommand(),
	)
	return root
}

func (c *cli) init() error {
	if c.logger == nil {
		zcfg := zap.NewProductionConfig()
		if c.verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		c.logger = logger
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	c.logger.Sugar().Debugf(
		"Config loaded. Dataset=%s Algorithm=%s TestRatio=%.2f Seed=%d Labels=%s DB=%s Slack=%t Rationale=%t Timezone=%s ExternalHTTPTimeout=%s",
		cfg.DatasetPath,
		cfg.Algorithm,
		cfg.TestRatio,
		cfg.SplitSeed,
		cfg.LabelsPath,
		cfg.DBPath,
		cfg.SlackConfigured(),
		cfg.RationaleConfigured(),
		cfg.Timezone,
		applied,
	)
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vargento %s\n", Version)
		},
	}
}
