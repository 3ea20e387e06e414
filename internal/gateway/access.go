package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/naka-gawa/github-digest/internal/domain"
)

// AccessReport describes what the configured token can see.
type AccessReport struct {
	Login         string
	RateRemaining int
	RateLimit     int
	RateResetAt   time.Time
	Repositories  []RepositoryAccess
}

// RepositoryAccess is the visibility of a single repository to the token.
type RepositoryAccess struct {
	Repository domain.Repository
	Visible    bool
	Private    bool
	Err        string
}

// viewerQuery fetches the token owner and the GraphQL rate-limit budget.
type viewerQuery struct {
	Viewer struct {
		Login string
	}
	RateLimit struct {
		Limit     int
		Remaining int
		ResetAt   githubv4.DateTime
	}
}

type repositoryQuery struct {
	Repository struct {
		NameWithOwner string
		IsPrivate     bool
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// CheckAccess verifies the token and that each repository resolves.
// A repository that cannot be resolved is reported, not returned as an error.
func (g *GitHubGateway) CheckAccess(ctx context.Context, repos []domain.Repository) (*AccessReport, error) {
	g.logger.Println("Checking token with GraphQL API...")
	var vq viewerQuery
	if err := g.graphqlClient.Query(ctx, &vq, nil); err != nil {
		return nil, fmt.Errorf("failed to execute GraphQL viewer query: %w", err)
	}
	report := &AccessReport{
		Login:         vq.Viewer.Login,
		RateRemaining: vq.RateLimit.Remaining,
		RateLimit:     vq.RateLimit.Limit,
		RateResetAt:   vq.RateLimit.ResetAt.Time,
		Repositories:  make([]RepositoryAccess, 0, len(repos)),
	}

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		access := RepositoryAccess{Repository: repo}
		var rq repositoryQuery
		variables := map[string]interface{}{
			"owner": githubv4.String(repo.Owner),
			"name":  githubv4.String(repo.Name),
		}
		if err := g.graphqlClient.Query(ctx, &rq, variables); err != nil {
			g.logger.Printf("  %s: %v", repo.FullName(), err)
			access.Err = err.Error()
		} else {
			access.Visible = rq.Repository.NameWithOwner != ""
			access.Private = rq.Repository.IsPrivate
		}
		report.Repositories = append(report.Repositories, access)
	}
	g.logger.Println("Completed access check.")
	return report, nil
}
