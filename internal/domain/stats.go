// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Repository identifies a GitHub repository by owner and name.
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// ParseRepository parses an "owner/name" string.
func ParseRepository(fullName string) (Repository, error) {
	parts := strings.SplitN(strings.TrimSpace(fullName), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return Repository{}, fmt.Errorf("invalid repository %q: expected owner/name", fullName)
	}
	return Repository{Owner: parts[0], Name: parts[1]}, nil
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// URL returns the repository's page on github.com.
func (r Repository) URL() string {
	return "https://github.com/" + r.FullName()
}

// Record is an issue or pull request as returned by the list endpoints.
// Timestamps are nil when the API omitted them.
type Record struct {
	Number        int        `json:"number"`
	Title         string     `json:"title"`
	HTMLURL       string     `json:"html_url"`
	State         string     `json:"state"`
	Author        string     `json:"author"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	IsPullRequest bool       `json:"is_pull_request"`
}

// StateClosed is the state GitHub reports for closed issues and pull requests.
const StateClosed = "closed"

// ActivityBucket partitions records by what happened to them in the lookback window.
// A record may appear in more than one of the three lists.
type ActivityBucket struct {
	Opened  []Record `json:"opened"`
	Updated []Record `json:"updated"`
	Closed  []Record `json:"closed"`
}

// Counts returns the size of each list.
func (b ActivityBucket) Counts() Counts {
	return Counts{Opened: len(b.Opened), Updated: len(b.Updated), Closed: len(b.Closed)}
}

// Empty reports whether nothing happened.
func (b ActivityBucket) Empty() bool {
	return len(b.Opened) == 0 && len(b.Updated) == 0 && len(b.Closed) == 0
}

// RepoActivity holds the classified activity of a single repository.
// Err is set when the activity could not be fetched; the buckets are then empty.
type RepoActivity struct {
	Repository   Repository     `json:"repository"`
	Issues       ActivityBucket `json:"issues"`
	PullRequests ActivityBucket `json:"pull_requests"`
	Err          string         `json:"error,omitempty"`
}

// Degraded reports whether the repository's activity is missing because of a fetch error.
func (a RepoActivity) Degraded() bool {
	return a.Err != ""
}

// Counts holds the number of opened, updated and closed records.
type Counts struct {
	Opened  int `json:"opened"`
	Updated int `json:"updated"`
	Closed  int `json:"closed"`
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Opened:  c.Opened + o.Opened,
		Updated: c.Updated + o.Updated,
		Closed:  c.Closed + o.Closed,
	}
}

// TotalStats sums activity counts across repositories.
type TotalStats struct {
	Issues       Counts `json:"issues"`
	PullRequests Counts `json:"pull_requests"`
}

// CloseTimeStats summarises how long closed records stayed open, in hours.
type CloseTimeStats struct {
	Samples     int     `json:"samples"`
	MedianHours float64 `json:"median_hours"`
	P90Hours    float64 `json:"p90_hours"`
}

// Digest is the result of one run over all configured repositories.
type Digest struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Cutoff      time.Time      `json:"cutoff"`
	Activities  []RepoActivity `json:"activities"`
	Totals      TotalStats     `json:"totals"`
	CloseTimes  CloseTimeStats `json:"close_times"`
}

// Repositories returns the repositories in digest order.
func (d *Digest) Repositories() []Repository {
	repos := make([]Repository, 0, len(d.Activities))
	for _, a := range d.Activities {
		repos = append(repos, a.Repository)
	}
	return repos
}

// Failed returns the activities that could not be fetched.
func (d *Digest) Failed() []RepoActivity {
	var failed []RepoActivity
	for _, a := range d.Activities {
		if a.Degraded() {
			failed = append(failed, a)
		}
	}
	return failed
}
