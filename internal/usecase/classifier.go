package usecase

import (
	"time"

	"github.com/naka-gawa/github-digest/internal/domain"
)

// ClassifyIssues partitions records returned by the issues endpoint.
// Records carrying the pull request marker are skipped entirely: the pulls
// endpoint reports them.
func ClassifyIssues(records []domain.Record, cutoff time.Time) domain.ActivityBucket {
	return classify(records, cutoff, true)
}

// ClassifyPullRequests partitions records returned by the pulls endpoint.
func ClassifyPullRequests(records []domain.Record, cutoff time.Time) domain.ActivityBucket {
	return classify(records, cutoff, false)
}

func classify(records []domain.Record, cutoff time.Time, skipPullRequests bool) domain.ActivityBucket {
	bucket := domain.ActivityBucket{
		Opened:  []domain.Record{},
		Updated: []domain.Record{},
		Closed:  []domain.Record{},
	}
	for _, r := range records {
		if skipPullRequests && r.IsPullRequest {
			continue
		}
		if isOpened(r, cutoff) {
			bucket.Opened = append(bucket.Opened, r)
		}
		if isUpdated(r, cutoff) {
			bucket.Updated = append(bucket.Updated, r)
		}
		if isClosed(r, cutoff) {
			bucket.Closed = append(bucket.Closed, r)
		}
	}
	return bucket
}

// inWindow treats a missing timestamp as outside the window.
func inWindow(t *time.Time, cutoff time.Time) bool {
	return t != nil && t.After(cutoff)
}

func isOpened(r domain.Record, cutoff time.Time) bool {
	return inWindow(r.CreatedAt, cutoff)
}

func isUpdated(r domain.Record, cutoff time.Time) bool {
	if r.CreatedAt == nil || r.UpdatedAt == nil || r.UpdatedAt.Equal(*r.CreatedAt) {
		return false
	}
	return inWindow(r.UpdatedAt, cutoff)
}

func isClosed(r domain.Record, cutoff time.Time) bool {
	return r.State == domain.StateClosed && inWindow(r.ClosedAt, cutoff)
}
