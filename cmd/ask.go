package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// askUserID keys the local chat context used by the ask command, so
// repeated questions from the terminal share one conversation.
const askUserID = "cli"

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a documentation question from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, logger, err := setup(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("shutdown cleanup", "error", err)
			}
		}()

		question := strings.Join(args, " ")
		reply := a.Answerer.Answer(ctx, askUserID, question)
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
