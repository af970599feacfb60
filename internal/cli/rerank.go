package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quiz-result-service/internal/config"
)

// NewRerankCmd recomputes and stores the ranks of one test code.
func NewRerankCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rerank <test-code>",
		Short: "Recompute leaderboard ranks for a test code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRerank(cmd.Context(), cmd.OutOrStdout(), *configPath, args[0])
		},
	}
}

func runRerank(ctx context.Context, out io.Writer, configPath, testCode string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	ranked, err := b.service(cfg, logger).Rerank(ctx, testCode)
	if err != nil {
		return fmt.Errorf("rerank %s: %w", testCode, err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSER\tSCORE\tTIME")
	for _, rec := range ranked {
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%ds\n", rec.Rank, rec.UserID, rec.Score, rec.TotalQuestions, rec.TimeTaken)
	}
	return tw.Flush()
}
