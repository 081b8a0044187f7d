package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/reactchat/client"
	"github.com/lexcodex/reactchat/framework"
)

func newChatCmd() *cobra.Command {
	var (
		serverURL   string
		showSteps   bool
		noReasoning bool
		maxTokens   int
	)
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send one prompt to a running server and stream the answer",
		Long:  "Send one prompt to a running server and stream the answer. With no prompt argument the prompt is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				prompt = string(data)
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt is required")
			}
			if serverURL == "" {
				serverURL = localURL(globalCfg.Server)
			}

			out := cmd.OutOrStdout()
			color := false
			if f, ok := out.(*os.File); ok {
				color = client.ColorEnabled(f)
			}
			renderer := client.NewRenderer(out, color)
			renderer.ShowSteps = showSteps
			renderer.ShowReasoning = !noReasoning

			failed := false
			c := &client.Client{BaseURL: serverURL}
			err := c.Chat(cmd.Context(), client.ChatPayload{
				Messages:  []framework.Message{{Role: framework.RoleUser, Content: prompt}},
				MaxTokens: maxTokens,
			}, func(f client.Frame) error {
				renderer.Emit(f.Event())
				if f.Type == framework.EventError {
					failed = true
				}
				return nil
			})
			if err != nil {
				return err
			}
			if failed {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (defaults to the configured listener)")
	cmd.Flags().BoolVar(&showSteps, "steps", false, "Print ReAct step headings")
	cmd.Flags().BoolVar(&noReasoning, "no-reasoning", false, "Hide streamed reasoning")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Completion token limit per turn")
	return cmd
}

func localURL(s framework.ServerConfig) string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}
