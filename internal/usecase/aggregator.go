// Package usecase contains the business logic of the application.
package usecase

import (
	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/github-digest/internal/domain"
)

// Totals sums the per-repository bucket counts. Degraded repositories have
// empty buckets and so contribute nothing.
func Totals(activities []domain.RepoActivity) domain.TotalStats {
	var total domain.TotalStats
	for _, a := range activities {
		total.Issues = total.Issues.Add(a.Issues.Counts())
		total.PullRequests = total.PullRequests.Add(a.PullRequests.Counts())
	}
	return total
}

// CloseTimes computes how long the records closed in the window had been open.
// Records missing either timestamp are ignored.
func CloseTimes(activities []domain.RepoActivity) domain.CloseTimeStats {
	var hours stats.Float64Data
	collect := func(records []domain.Record) {
		for _, r := range records {
			if r.CreatedAt == nil || r.ClosedAt == nil {
				continue
			}
			hours = append(hours, r.ClosedAt.Sub(*r.CreatedAt).Hours())
		}
	}
	for _, a := range activities {
		collect(a.Issues.Closed)
		collect(a.PullRequests.Closed)
	}

	result := domain.CloseTimeStats{Samples: len(hours)}
	if len(hours) == 0 {
		return result
	}
	// Both only fail on empty input, which is handled above.
	result.MedianHours, _ = hours.Median()
	result.P90Hours, _ = hours.Percentile(90)
	return result
}
