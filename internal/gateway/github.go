// Package gateway provides a gateway to the GitHub API and to the mail system,
// abstracting away the underlying REST, GraphQL and SMTP clients.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/google/go-github/v84/github"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/naka-gawa/github-digest/internal/domain"
)

// lowRateLimit is the remaining-request count below which a warning is logged.
const lowRateLimit = 100

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
type Fetcher interface {
	// FetchIssues lists issues of all states updated at or after since.
	// The issues endpoint also returns pull requests; they are marked, not dropped.
	FetchIssues(ctx context.Context, repo domain.Repository, since time.Time) ([]domain.Record, error)
	// FetchPullRequests lists pull requests of all states updated at or after since.
	FetchPullRequests(ctx context.Context, repo domain.Repository, since time.Time) ([]domain.Record, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *log.Logger
}

var _ Fetcher = (*GitHubGateway)(nil)

// NewGitHubGateway creates a gateway whose REST and GraphQL clients share one
// transport stack: on-disk ETag cache under cacheDir (skipped when empty),
// token auth, then the secondary rate-limit sleeper. Exhausting the primary
// rate limit is not waited out; the request fails with go-github's error.
func NewGitHubGateway(token, cacheDir string, logger *log.Logger) *GitHubGateway {
	authTransport := &oauth2.Transport{
		Base:   newCacheTransport(cacheDir, nil),
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
	}
	httpClient := github_ratelimit.NewClient(authTransport)
	return &GitHubGateway{
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		logger:        logger,
	}
}

// newCacheTransport persists responses in dir so that the next run revalidates
// them with If-None-Match; 304 answers do not count against the rate limit.
// A nil base means http.DefaultTransport.
func newCacheTransport(dir string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if dir == "" {
		return base
	}
	t := httpcache.NewTransport(diskcache.New(dir))
	t.Transport = base
	return t
}

// FetchIssues lists a repository's issues using the since filter of the issues endpoint.
func (g *GitHubGateway) FetchIssues(ctx context.Context, repo domain.Repository, since time.Time) ([]domain.Record, error) {
	g.logger.Printf("Fetching issues for %s since %s...", repo.FullName(), since.Format(time.RFC3339))
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	records := []domain.Record{}
	for {
		issues, resp, err := g.restClient.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list issues for %s (page %d): %w", repo.FullName(), opts.ListOptions.Page, err)
		}
		g.logRateLimit(resp, repo)
		for _, issue := range issues {
			records = append(records, mapIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
		g.logger.Println("  Fetching next page of issues...")
	}
	g.logger.Printf("Completed fetching %d issues for %s.", len(records), repo.FullName())
	return records, nil
}

// FetchPullRequests lists a repository's pull requests. The pulls endpoint has no
// since filter, so results are sorted by update time and paging stops at the
// first page that ends before since.
func (g *GitHubGateway) FetchPullRequests(ctx context.Context, repo domain.Repository, since time.Time) ([]domain.Record, error) {
	g.logger.Printf("Fetching pull requests for %s since %s...", repo.FullName(), since.Format(time.RFC3339))
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	records := []domain.Record{}
	for {
		prs, resp, err := g.restClient.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list pull requests for %s (page %d): %w", repo.FullName(), opts.Page, err)
		}
		g.logRateLimit(resp, repo)
		reachedOlder := false
		for _, pr := range prs {
			if pr.UpdatedAt != nil && pr.GetUpdatedAt().Before(since) {
				reachedOlder = true
				continue
			}
			records = append(records, mapPullRequest(pr))
		}
		if reachedOlder || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Println("  Fetching next page of pull requests...")
	}
	g.logger.Printf("Completed fetching %d pull requests for %s.", len(records), repo.FullName())
	return records, nil
}

func (g *GitHubGateway) logRateLimit(resp *github.Response, repo domain.Repository) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	if resp.Rate.Remaining < lowRateLimit {
		g.logger.Printf("WARNING: GitHub rate limit low while fetching %s: %d/%d remaining, resets in %s",
			repo.FullName(), resp.Rate.Remaining, resp.Rate.Limit,
			time.Until(resp.Rate.Reset.Time).Round(time.Second))
	}
}

// mapIssue converts a go-github Issue using the nil-safe GetXxx() accessors.
func mapIssue(issue *github.Issue) domain.Record {
	return domain.Record{
		Number:        issue.GetNumber(),
		Title:         issue.GetTitle(),
		HTMLURL:       issue.GetHTMLURL(),
		State:         issue.GetState(),
		Author:        issue.GetUser().GetLogin(),
		CreatedAt:     timestamp(issue.CreatedAt),
		UpdatedAt:     timestamp(issue.UpdatedAt),
		ClosedAt:      timestamp(issue.ClosedAt),
		IsPullRequest: issue.IsPullRequest(),
	}
}

func mapPullRequest(pr *github.PullRequest) domain.Record {
	return domain.Record{
		Number:        pr.GetNumber(),
		Title:         pr.GetTitle(),
		HTMLURL:       pr.GetHTMLURL(),
		State:         pr.GetState(),
		Author:        pr.GetUser().GetLogin(),
		CreatedAt:     timestamp(pr.CreatedAt),
		UpdatedAt:     timestamp(pr.UpdatedAt),
		ClosedAt:      timestamp(pr.ClosedAt),
		IsPullRequest: true,
	}
}

func timestamp(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.UTC()
	return &t
}
