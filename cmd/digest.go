package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-digest/internal/domain"
	"github.com/naka-gawa/github-digest/internal/gateway"
	"github.com/naka-gawa/github-digest/internal/usecase"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Builds the activity digest and sends it by email",
	Long: `Fetches the issues and pull requests changed in the lookback window for every
configured repository, renders the HTML digest and sends it by email. With
--dry-run the HTML is written to --out (or standard output) instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := newLogger(cmd)

		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := cfg.ValidateToken(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		outPath, _ := cmd.Flags().GetString("out")
		summary, _ := cmd.Flags().GetBool("summary")

		// Pick where the digest goes.
		var sender gateway.Sender
		if dryRun {
			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Failed to create output file: %v\n", err)
					os.Exit(1)
				}
				defer f.Close()
				out = f
			}
			sender = gateway.NewWriterSender(out, logger)
		} else {
			if err := cfg.ValidateMail(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			sender = gateway.NewSMTPSender(cfg.Mail, logger)
		}

		// Inject dependencies and run the main business logic.
		githubGateway := gateway.NewGitHubGateway(cfg.GitHubToken, cfg.CacheDir, logger)
		digester := usecase.NewDigester(githubGateway, sender, logger,
			usecase.WithLookback(cfg.Lookback),
			usecase.WithConcurrency(cfg.Concurrency),
		)

		digest, err := digester.Run(ctx, cfg.Repositories, time.Now())
		if digest != nil {
			reportFailures(digest)
			if summary {
				printSummary(digest)
			}
		}
		if err != nil {
			if errors.Is(err, usecase.ErrNoActivityFetched) {
				fmt.Fprintln(os.Stderr, "Error: a degraded digest was sent but no repository could be fetched.")
			} else {
				fmt.Fprintf(os.Stderr, "Failed to produce digest: %v\n", err)
			}
			os.Exit(1)
		}
	},
}

func reportFailures(digest *domain.Digest) {
	for _, a := range digest.Failed() {
		fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", a.Repository.FullName(), a.Err)
	}
}

// printSummary writes the digest totals as JSON to standard error so it does
// not mix with a dry-run digest on standard output.
func printSummary(digest *domain.Digest) {
	jsonData, err := json.MarshalIndent(struct {
		Repositories int                   `json:"repositories"`
		Failed       int                   `json:"failed"`
		Totals       domain.TotalStats     `json:"totals"`
		CloseTimes   domain.CloseTimeStats `json:"close_times"`
	}{
		Repositories: len(digest.Activities),
		Failed:       len(digest.Failed()),
		Totals:       digest.Totals,
		CloseTimes:   digest.CloseTimes,
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal summary to JSON: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, string(jsonData))
}

func init() {
	rootCmd.AddCommand(digestCmd)
	digestCmd.Flags().Duration("lookback", usecase.DefaultLookback, "Window preceding now to report on")
	digestCmd.Flags().Int("concurrency", 4, "Maximum number of repositories fetched at once")
	digestCmd.Flags().Bool("dry-run", false, "Write the HTML digest instead of sending it")
	digestCmd.Flags().String("out", "", "File to write the digest to with --dry-run (default: stdout)")
	digestCmd.Flags().Bool("summary", false, "Print the totals as JSON to standard error")
}
