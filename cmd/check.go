package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-digest/internal/gateway"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verifies the GitHub token and the configured repositories",
	Long:  `Queries the GitHub GraphQL API for the token owner, the remaining rate-limit budget and whether each configured repository is visible. Exits non-zero when any repository cannot be resolved.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
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

		githubGateway := gateway.NewGitHubGateway(cfg.GitHubToken, cfg.CacheDir, logger)
		report, err := githubGateway.CheckAccess(ctx, cfg.Repositories)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to check access: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Authenticated as %s\n", report.Login)
		fmt.Printf("GraphQL rate limit: %d/%d remaining, resets at %s\n",
			report.RateRemaining, report.RateLimit, report.RateResetAt.Local().Format(time.RFC3339))
		unresolved := 0
		for _, r := range report.Repositories {
			switch {
			case r.Err != "":
				unresolved++
				fmt.Printf("  %-40s error: %s\n", r.Repository.FullName(), r.Err)
			case !r.Visible:
				unresolved++
				fmt.Printf("  %-40s not visible\n", r.Repository.FullName())
			case r.Private:
				fmt.Printf("  %-40s ok (private)\n", r.Repository.FullName())
			default:
				fmt.Printf("  %-40s ok\n", r.Repository.FullName())
			}
		}
		if unresolved > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
