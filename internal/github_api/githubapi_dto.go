// Các đối tượng truyền dữ liệu cho GitHub GraphQL search API

package githubapi

import "time"

// SearchRepositoriesQuery is sent verbatim with every page request.
const SearchRepositoriesQuery = `
query searchRepositories($range: String!, $first: Int!, $cursor: String) {
  search(query: $range, type: REPOSITORY, first: $first, after: $cursor) {
    repositoryCount
    pageInfo {
      endCursor
      hasNextPage
    }
    nodes {
      ... on Repository {
        nameWithOwner
        stargazerCount
      }
    }
  }
}
`

type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type GraphQLError struct {
	Type    string        `json:"type,omitempty"`
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

type PageInfo struct {
	EndCursor   *string `json:"endCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type RepositoryNode struct {
	NameWithOwner  string `json:"nameWithOwner"`
	StargazerCount int64  `json:"stargazerCount"`
}

type SearchResult struct {
	RepositoryCount int              `json:"repositoryCount"`
	PageInfo        PageInfo         `json:"pageInfo"`
	Nodes           []RepositoryNode `json:"nodes"`
}

type SearchResponse struct {
	Data *struct {
		Search *SearchResult `json:"search"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// RateLimit is the quota state read from response headers. Remaining is -1 when absent.
type RateLimit struct {
	Remaining int
	ResetAt   time.Time
}

// Exhausted reports whether the header said no requests are left.
func (r RateLimit) Exhausted() bool {
	return r.Remaining == 0
}

// SearchPage is one successfully decoded page.
type SearchPage struct {
	RepositoryCount int
	Nodes           []RepositoryNode
	EndCursor       string
	HasNextPage     bool
	RateLimit       RateLimit
}
