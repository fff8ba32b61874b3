package cmd

import (
	"github.com/spf13/cobra"
)

var forceIngest bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch and index the configured documentation repositories",
	Long: `ingest fetches the documentation of every configured source repository,
chunks it, and writes the embeddings into the vector index. Previously
indexed chunks of each repository are replaced.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		if !forceIngest {
			count, err := a.Knowledge.Count(ctx, "")
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("index already populated, use --force to re-ingest", "chunks", count)
				return nil
			}
		}

		return a.Pipeline.Ingest(ctx)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&forceIngest, "force", false, "re-ingest even when the index is populated")
	rootCmd.AddCommand(ingestCmd)
}
