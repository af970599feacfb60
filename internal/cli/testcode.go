package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"quiz-result-service/internal/config"
	"quiz-result-service/internal/domain"
)

// NewTestCodeCmd groups test-code administration.
func NewTestCodeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testcode",
		Short: "Manage shared test codes",
	}
	cmd.AddCommand(newTestCodeCreateCmd(configPath))
	return cmd
}

func newTestCodeCreateCmd(configPath *string) *cobra.Command {
	var tc domain.TestCode
	cmd := &cobra.Command{
		Use:   "create <code>",
		Short: "Issue a test code in Postgres and drop its cached lookup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc.Code = args[0]
			return runTestCodeCreate(cmd.Context(), cmd.OutOrStdout(), *configPath, tc)
		},
	}
	cmd.Flags().StringVar(&tc.Subject, "subject", "", "quiz subject")
	cmd.Flags().StringVar(&tc.Topic, "topic", "", "quiz topic")
	cmd.Flags().StringVar(&tc.Difficulty, "difficulty", "medium", "difficulty label")
	cmd.Flags().StringVar(&tc.CreatedBy, "created-by", "", "issuing admin id")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// runTestCodeCreate writes through the same service the HTTP API uses, so a
// shared Redis cache is invalidated for every running server.
func runTestCodeCreate(ctx context.Context, out io.Writer, configPath string, tc domain.TestCode) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return errors.New("testcode create needs postgres.url; without it codes come from testCodes.codes in the config")
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

	issued, err := b.testCodeService().Issue(ctx, tc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "test code %s issued\n", issued.Code)
	return nil
}
