package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexcodex/reactchat/framework/codesafety"
)

func newAnalyzeCmd() *cobra.Command {
	var langName string
	cmd := &cobra.Command{
		Use:   "analyze <file|->",
		Short: "Check a snippet for file system or process operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := codesafety.ParseLanguage(langName)
			if err != nil {
				return err
			}
			var code []byte
			if args[0] == "-" {
				code, err = io.ReadAll(cmd.InOrStdin())
			} else {
				code, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			verdict, err := codesafety.NewAnalyzer(logger).Analyze(string(code), lang)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(verdict); err != nil {
				return err
			}
			if !verdict.Safe {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&langName, "lang", "python", "Snippet language (python or javascript)")
	return cmd
}
