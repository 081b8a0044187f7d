package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lexcodex/reactchat/framework"
	"github.com/lexcodex/reactchat/framework/codesafety"
	"github.com/lexcodex/reactchat/tools"
)

var (
	cfgFile  string
	addrFlag string
	levelArg string

	globalCfg   *framework.Config
	logger      *slog.Logger
	closeLogger = func() error { return nil }
)

// NewRootCmd wires the cobra tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reactchat",
		Short:         "Streaming ReAct chat server with sandboxed code tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := framework.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
				return err
			}
			if err := applyFlags(cfg); err != nil {
				return err
			}
			l, closer, err := newLogger(cfg.Logging, os.Stderr)
			if err != nil {
				return err
			}
			globalCfg, logger, closeLogger = cfg, l, closer
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeLogger()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "reactchat.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&addrFlag, "addr", "", "Listen address (host:port), overrides config")
	root.PersistentFlags().StringVar(&levelArg, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newToolsCmd(),
		newAnalyzeCmd(),
	)
	return root
}

func applyFlags(cfg *framework.Config) error {
	if levelArg != "" {
		cfg.Logging.Level = levelArg
	}
	if addrFlag == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(addrFlag)
	if err != nil {
		return fmt.Errorf("--addr: %w", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("--addr port: %w", err)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	cfg.Server.Port = p
	return nil
}

// buildRegistry registers the built-in tools rooted at the configured
// working directory.
func buildRegistry(cfg *framework.Config, logger *slog.Logger) (*framework.ToolRegistry, error) {
	registry := framework.NewToolRegistry(logger)
	runner := framework.NewLocalCommandRunner(logger)
	analyzer := codesafety.NewAnalyzer(logger)
	if err := tools.RegisterBuiltins(registry, cfg.Tools, runner, analyzer, logger); err != nil {
		return nil, err
	}
	return registry, nil
}
