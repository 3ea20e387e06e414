package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/github-digest/internal/domain"
)

var testRepo = domain.Repository{Owner: "org", Name: "repo"}

// setupTestGateway creates a GitHubGateway that communicates with a mock HTTP server.
func setupTestGateway(t *testing.T, handler http.Handler) *GitHubGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	// Setup REST client to point to the mock server.
	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL

	// Use NewEnterpriseClient to point the GraphQL client to our mock server's URL.
	graphqlClient := githubv4.NewEnterpriseClient(server.URL, server.Client())

	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        log.New(io.Discard, "", 0),
	}
}

func TestGitHubGateway_FetchIssues(t *testing.T) {
	since := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	testCases := []struct {
		name           string
		handlerFunc    func(w http.ResponseWriter, r *http.Request)
		expected       []domain.Record
		expectError    bool
		expectedErrMsg string
	}{
		{
			name: "happy path - maps issues and marks pull requests",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/org/repo/issues", r.URL.Path)
				assert.Equal(t, "all", r.URL.Query().Get("state"))
				assert.Equal(t, "2026-03-09T08:00:00Z", r.URL.Query().Get("since"))
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, `[
					{"number": 1, "title": "Bug", "state": "closed", "html_url": "https://github.com/org/repo/issues/1",
					 "user": {"login": "alice"}, "created_at": "2026-03-09T10:00:00Z", "updated_at": "2026-03-09T12:00:00Z", "closed_at": "2026-03-09T12:00:00Z"},
					{"number": 2, "title": "PR", "state": "open", "user": {"login": "bob"},
					 "created_at": "2026-03-09T11:00:00Z", "updated_at": "2026-03-09T11:00:00Z",
					 "pull_request": {"url": "https://api.github.com/repos/org/repo/pulls/2"}},
					{"number": 3, "title": "No dates", "state": "open"}
				]`)
			},
			expected: []domain.Record{
				{
					Number: 1, Title: "Bug", State: "closed", HTMLURL: "https://github.com/org/repo/issues/1", Author: "alice",
					CreatedAt: timePtr("2026-03-09T10:00:00Z"), UpdatedAt: timePtr("2026-03-09T12:00:00Z"), ClosedAt: timePtr("2026-03-09T12:00:00Z"),
				},
				{
					Number: 2, Title: "PR", State: "open", Author: "bob", IsPullRequest: true,
					CreatedAt: timePtr("2026-03-09T11:00:00Z"), UpdatedAt: timePtr("2026-03-09T11:00:00Z"),
				},
				{Number: 3, Title: "No dates", State: "open"},
			},
		},
		{
			name: "error case - GitHub API returns an error",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"message": "Internal Server Error"}`)
			},
			expectError:    true,
			expectedErrMsg: "failed to list issues for org/repo",
		},
		{
			name: "error case - malformed JSON",
			handlerFunc: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, `[{"number": "not-a-number"`)
			},
			expectError:    true,
			expectedErrMsg: "failed to list issues for org/repo",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway := setupTestGateway(t, http.HandlerFunc(tc.handlerFunc))
			result, err := gateway.FetchIssues(context.Background(), testRepo, since)
			if tc.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, result)
			}
		})
	}
}

func TestGitHubGateway_FetchIssues_FollowsPagination(t *testing.T) {
	var serverURL string
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/org/repo/issues?page=2>; rel="next"`, serverURL))
			fmt.Fprint(w, `[{"number": 1}]`)
		case "2":
			fmt.Fprint(w, `[{"number": 2}]`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	serverURL = server.URL

	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL
	gateway := &GitHubGateway{restClient: restClient, logger: log.New(io.Discard, "", 0)}

	result, err := gateway.FetchIssues(context.Background(), testRepo, time.Now())

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 1, result[0].Number)
	assert.Equal(t, 2, result[1].Number)
}

func TestGitHubGateway_FetchPullRequests_StopsAtOlderPage(t *testing.T) {
	since := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	requests := 0
	var serverURL string
	handler := func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/repos/org/repo/pulls", r.URL.Path)
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("direction"))
		// A next link is always offered; the gateway must not follow it.
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/org/repo/pulls?page=2>; rel="next"`, serverURL))
		fmt.Fprint(w, `[
			{"number": 10, "state": "open", "user": {"login": "alice"}, "created_at": "2026-03-09T09:00:00Z", "updated_at": "2026-03-10T07:00:00Z"},
			{"number": 11, "state": "closed", "created_at": "2026-03-01T09:00:00Z", "updated_at": "2026-03-09T09:00:00Z", "closed_at": "2026-03-09T09:00:00Z"},
			{"number": 12, "state": "closed", "created_at": "2026-02-01T09:00:00Z", "updated_at": "2026-03-01T09:00:00Z", "closed_at": "2026-03-01T09:00:00Z"}
		]`)
	}
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	serverURL = server.URL

	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL
	gateway := &GitHubGateway{restClient: restClient, logger: log.New(io.Discard, "", 0)}

	result, err := gateway.FetchPullRequests(context.Background(), testRepo, since)

	require.NoError(t, err)
	assert.Equal(t, 1, requests)
	require.Len(t, result, 2)
	assert.Equal(t, 10, result[0].Number)
	assert.Equal(t, "alice", result[0].Author)
	assert.True(t, result[0].IsPullRequest)
	assert.Equal(t, 11, result[1].Number)
	assert.Equal(t, timePtr("2026-03-09T09:00:00Z"), result[1].ClosedAt)
}

func TestGitHubGateway_FetchPullRequests_Error(t *testing.T) {
	gateway := setupTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))

	_, err := gateway.FetchPullRequests(context.Background(), testRepo, time.Now())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list pull requests for org/repo")
	var ghErr *github.ErrorResponse
	assert.ErrorAs(t, err, &ghErr)
}

func TestGitHubGateway_FetchIssues_WarnsOnLowRateLimit(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Add(30*time.Minute).Unix()))
		fmt.Fprint(w, `[]`)
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler))
	var logs bytes.Buffer
	gateway.logger = log.New(&logs, "", 0)

	_, err := gateway.FetchIssues(context.Background(), testRepo, time.Now())

	require.NoError(t, err)
	assert.Contains(t, logs.String(), "WARNING: GitHub rate limit low while fetching org/repo: 42/5000 remaining")
}

func TestGitHubGateway_FetchIssues_NoWarningWithBudgetLeft(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Add(time.Hour).Unix()))
		fmt.Fprint(w, `[]`)
	}
	gateway := setupTestGateway(t, http.HandlerFunc(handler))
	var logs bytes.Buffer
	gateway.logger = log.New(&logs, "", 0)

	_, err := gateway.FetchIssues(context.Background(), testRepo, time.Now())

	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "rate limit low")
}

// TestCacheTransport_RevalidatesAcrossRuns simulates two daily runs, each with a
// fresh transport over the same cache directory.
func TestCacheTransport_RevalidatesAcrossRuns(t *testing.T) {
	const etag = `"issues-v1"`
	var requests, notModified int
	handler := func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == etag {
			notModified++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		fmt.Fprint(w, `[{"number": 1}]`)
	}
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	dir := t.TempDir()

	get := func() (string, *http.Response) {
		client := &http.Client{Transport: newCacheTransport(dir, server.Client().Transport)}
		resp, err := client.Get(server.URL + "/repos/org/repo/issues")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body), resp
	}

	firstBody, first := get()
	secondBody, second := get()

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Empty(t, first.Header.Get("X-From-Cache"))
	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "1", second.Header.Get("X-From-Cache"))
	assert.Equal(t, firstBody, secondBody)
	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, notModified)
}

func TestCacheTransport_DisabledWithoutDirectory(t *testing.T) {
	base := http.DefaultTransport
	assert.Equal(t, base, newCacheTransport("", base))
	assert.Equal(t, http.DefaultTransport, newCacheTransport("", nil))
}

func timePtr(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}
