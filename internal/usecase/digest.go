package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/github-digest/internal/domain"
	"github.com/naka-gawa/github-digest/internal/gateway"
	"github.com/naka-gawa/github-digest/internal/render"
)

// DefaultLookback is the window covered by a daily digest.
const DefaultLookback = 24 * time.Hour

// ErrNoActivityFetched is returned when every repository failed to fetch.
// The degraded digest has still been sent at that point.
var ErrNoActivityFetched = errors.New("no repository activity could be fetched")

// Digester is the use case for building and sending the daily digest.
// It orchestrates fetching, classifying, aggregating, rendering and sending.
type Digester struct {
	fetcher     gateway.Fetcher
	sender      gateway.Sender
	logger      *log.Logger
	lookback    time.Duration
	concurrency int
}

// Option configures a Digester.
type Option func(*Digester)

// WithLookback sets the window preceding the run time. Non-positive values are ignored.
func WithLookback(d time.Duration) Option {
	return func(dg *Digester) {
		if d > 0 {
			dg.lookback = d
		}
	}
}

// WithConcurrency bounds the number of repositories fetched at once.
func WithConcurrency(n int) Option {
	return func(dg *Digester) {
		if n > 0 {
			dg.concurrency = n
		}
	}
}

// NewDigester creates a new Digester instance.
func NewDigester(fetcher gateway.Fetcher, sender gateway.Sender, logger *log.Logger, opts ...Option) *Digester {
	d := &Digester{
		fetcher:     fetcher,
		sender:      sender,
		logger:      logger,
		lookback:    DefaultLookback,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Build fetches and classifies the activity of every repository.
// A repository that fails to fetch becomes a degraded entry; only context
// cancellation aborts the build.
func (d *Digester) Build(ctx context.Context, repos []domain.Repository, now time.Time) (*domain.Digest, error) {
	d.logger.Printf("Usecase: Building digest for %d repositories...", len(repos))
	cutoff := now.Add(-d.lookback)
	activities := make([]domain.RepoActivity, len(repos))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)
	for i, repo := range repos {
		eg.Go(func() error {
			activity, err := d.fetchRepoActivity(egCtx, repo, cutoff)
			if err != nil {
				if ctxErr := egCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				d.logger.Printf("WARNING: %s: %v", repo.FullName(), err)
				activity = domain.RepoActivity{Repository: repo, Err: err.Error()}
			}
			activities[i] = activity
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	digest := &domain.Digest{
		GeneratedAt: now,
		Cutoff:      cutoff,
		Activities:  activities,
		Totals:      Totals(activities),
		CloseTimes:  CloseTimes(activities),
	}
	d.logger.Println("Usecase: Digest built.")
	return digest, nil
}

func (d *Digester) fetchRepoActivity(ctx context.Context, repo domain.Repository, cutoff time.Time) (domain.RepoActivity, error) {
	issues, err := d.fetcher.FetchIssues(ctx, repo, cutoff)
	if err != nil {
		return domain.RepoActivity{}, err
	}
	prs, err := d.fetcher.FetchPullRequests(ctx, repo, cutoff)
	if err != nil {
		return domain.RepoActivity{}, err
	}
	return domain.RepoActivity{
		Repository:   repo,
		Issues:       ClassifyIssues(issues, cutoff),
		PullRequests: ClassifyPullRequests(prs, cutoff),
	}, nil
}

// Run builds the digest, renders it and hands it to the sender.
// A digest is sent even when some or all repositories failed.
func (d *Digester) Run(ctx context.Context, repos []domain.Repository, now time.Time) (*domain.Digest, error) {
	digest, err := d.Build(ctx, repos, now)
	if err != nil {
		return nil, err
	}

	body, err := render.HTML(digest)
	if err != nil {
		return digest, err
	}
	msg := gateway.Message{
		Subject: render.Subject(repos, now),
		HTML:    body,
		Text:    render.PlainText(body),
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return digest, fmt.Errorf("failed to deliver digest: %w", err)
	}

	if failed := digest.Failed(); len(repos) > 0 && len(failed) == len(repos) {
		return digest, ErrNoActivityFetched
	}
	return digest, nil
}
