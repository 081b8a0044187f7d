package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexcodex/reactchat/agents/react"
	"github.com/lexcodex/reactchat/framework"
	"github.com/lexcodex/reactchat/llm"
	"github.com/lexcodex/reactchat/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := globalCfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			registry, err := buildRegistry(cfg, logger)
			if err != nil {
				return err
			}
			client := llm.NewClient(llm.Config{
				APIKey:        cfg.LLM.APIKey,
				URL:           cfg.LLM.APIURL,
				Model:         cfg.LLM.Model,
				HeaderTimeout: cfg.LLM.RequestTimeout,
			}, llm.WithLogger(logger))
			model := llm.NewInstrumentedModel(client, logger, logLevel.Level() <= slog.LevelDebug)

			api := &server.APIServer{
				Driver: &react.Driver{
					Model:         model,
					Tools:         registry,
					MaxIterations: cfg.Agent.MaxIterations,
					MaxTokens:     cfg.Agent.MaxTokens,
					Logger:        logger,
				},
				Tools:       registry,
				Logger:      logger,
				CORSOrigins: cfg.Server.CORSOrigins,
			}
			if cfg.Server.TranscriptFile != "" {
				transcript, err := framework.NewJSONFileSink(cfg.Server.TranscriptFile)
				if err != nil {
					return err
				}
				defer transcript.Close()
				api.Transcript = transcript
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info("starting server",
				"model", cfg.LLM.Model,
				"tools", registry.Len(),
				"working_directory", cfg.Tools.WorkingDirectory)
			err = api.ServeContext(ctx, cfg.Server.Addr())
			if errors.Is(err, context.Canceled) {
				logger.Info("server stopped")
				return nil
			}
			return err
		},
	}
}
