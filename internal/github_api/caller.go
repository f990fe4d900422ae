// Gói githubapi cung cấp một caller cho GitHub GraphQL search API.
// Caller gửi một trang tìm kiếm, đọc thông tin rate limit trong header
// và phân loại lỗi để crawler quyết định cách thử lại.

package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

const maxErrorBody = 512

type Caller struct {
	Logger log.Logger
	Config *cfg.Config
	client *http.Client
}

// NewCaller builds a caller whose HTTP client sends the access token as a bearer credential.
func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	base := &http.Client{Timeout: config.GithubApi.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: config.GithubApi.AccessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = config.GithubApi.Timeout
	return NewCallerWithClient(logger, config, client)
}

// NewCallerWithClient uses client as is; authentication is the client's business.
func NewCallerWithClient(logger log.Logger, config *cfg.Config, client *http.Client) *Caller {
	return &Caller{
		Logger: logger,
		Config: config,
		client: client,
	}
}

// Search requests one page of repositories matching query, continuing after cursor ("" = first page).
// Failures come back as *TransportError, *DecodeError, *RateLimitError or *ApplicationError;
// a cancelled ctx is returned as the context error.
func (c *Caller) Search(ctx context.Context, query, cursor string, first int) (*SearchPage, error) {
	variables := map[string]interface{}{
		"range":  query,
		"first":  first,
		"cursor": nil,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	payload, err := json.Marshal(GraphQLRequest{Query: SearchRepositoriesQuery, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.GithubApi.ApiUrl, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Config.GithubApi.UserAgent != "" {
		req.Header.Set("User-Agent", c.Config.GithubApi.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	rateLimit := c.parseRateLimit(resp.Header)
	c.Logger.Debug(ctx, "Search %q cursor=%q status=%d rate limit remaining=%d", query, cursor, resp.StatusCode, rateLimit.Remaining)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	// Kiểm tra rate limit
	if rateErr := c.rateLimitError(resp, rateLimit); rateErr != nil {
		return nil, rateErr
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: errors.New(snippet(body))}
	}

	// Giải mã phản hồi
	var decoded SearchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if len(decoded.Errors) > 0 {
		for _, gqlErr := range decoded.Errors {
			if gqlErr.Type == "RATE_LIMITED" {
				return nil, &RateLimitError{ResetAt: rateLimit.ResetAt, StatusCode: resp.StatusCode}
			}
		}
		return nil, &ApplicationError{Errors: decoded.Errors}
	}

	if decoded.Data == nil || decoded.Data.Search == nil {
		return nil, &DecodeError{Err: errors.New("response has no data.search")}
	}

	search := decoded.Data.Search
	page := &SearchPage{
		RepositoryCount: search.RepositoryCount,
		Nodes:           search.Nodes,
		HasNextPage:     search.PageInfo.HasNextPage,
		RateLimit:       rateLimit,
	}
	if search.PageInfo.EndCursor != nil {
		page.EndCursor = *search.PageInfo.EndCursor
	}
	return page, nil
}

// rateLimitError turns a 403/429 into a RateLimitError when the headers say the quota is spent.
func (c *Caller) rateLimitError(resp *http.Response, rateLimit RateLimit) error {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && seconds >= 0 {
			return &RateLimitError{
				RetryAfter: time.Duration(seconds) * time.Second,
				ResetAt:    rateLimit.ResetAt,
				StatusCode: resp.StatusCode,
			}
		}
	}
	if rateLimit.Exhausted() || resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{ResetAt: rateLimit.ResetAt, StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Caller) parseRateLimit(header http.Header) RateLimit {
	rateLimit := RateLimit{Remaining: -1}

	remainingHeader := c.Config.GithubApi.RateLimitRemainingHeader
	if remainingHeader == "" {
		remainingHeader = "X-RateLimit-Remaining"
	}
	resetHeader := c.Config.GithubApi.RateLimitResetHeader
	if resetHeader == "" {
		resetHeader = "X-RateLimit-Reset"
	}

	if remaining, err := strconv.Atoi(strings.TrimSpace(header.Get(remainingHeader))); err == nil {
		rateLimit.Remaining = remaining
	}
	if reset, err := strconv.ParseInt(strings.TrimSpace(header.Get(resetHeader)), 10, 64); err == nil && reset > 0 {
		rateLimit.ResetAt = time.Unix(reset, 0).UTC()
	}
	return rateLimit
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	if text == "" {
		return "empty body"
	}
	return text
}
