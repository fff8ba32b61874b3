// Package social talks to the social feed API: searching recent posts,
// publishing, reposting, and reading mentions. All requests go through a
// proactive rate limiter; 429 responses surface as RateLimitError so
// callers can wait out the window and resume.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.twitter.com/2"
	requestTimeout = 30 * time.Second

	// Free-tier app quota is low; half a request per second keeps bursts
	// from tripping the server-side window.
	proactiveRate = 0.5

	rateLimitResetHeader = "x-rate-limit-reset"
)

// ErrRateLimited marks rate-limit backpressure from the platform.
var ErrRateLimited = errors.New("rate limited")

// RateLimitError wraps ErrRateLimited with the delay until the quota
// window resets.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Post is one post on the platform.
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Client is the surface the bot needs from the platform.
type Client interface {
	SearchRecent(ctx context.Context, query string, maxResults int) ([]Post, error)
	CreatePost(ctx context.Context, text string) (Post, error)
	Repost(ctx context.Context, postID string) error
	Mentions(ctx context.Context, since time.Time) ([]Post, error)
}

// HTTPClient implements Client against the v2 JSON API.
type HTTPClient struct {
	baseURL string
	userID  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPClient creates a client authenticating with the given bearer
// token. userID identifies the bot's own account for mentions and reposts.
func NewHTTPClient(bearerToken, userID string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearerToken})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = requestTimeout

	return &HTTPClient{
		baseURL: defaultBaseURL,
		userID:  userID,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(proactiveRate), 1),
		logger:  logger,
	}
}

// NewHTTPClientWithBase creates a client against a custom base URL with a
// pre-built HTTP client. Used by tests.
func NewHTTPClientWithBase(baseURL, userID string, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: baseURL,
		userID:  userID,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger,
	}
}

type postsEnvelope struct {
	Data []struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		AuthorID  string    `json:"author_id"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"data"`
}

// SearchRecent returns recent posts matching the query.
func (c *HTTPClient) SearchRecent(ctx context.Context, query string, maxResults int) ([]Post, error) {
	q := url.Values{}
	q.Set("query", query)
	if maxResults > 0 {
		q.Set("max_results", strconv.Itoa(maxResults))
	}
	q.Set("tweet.fields", "author_id,created_at")

	body, err := c.do(ctx, http.MethodGet, "/tweets/search/recent?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search recent: %w", err)
	}
	return decodePosts(body)
}

// CreatePost publishes a new post and returns it with its assigned ID.
func (c *HTTPClient) CreatePost(ctx context.Context, text string) (Post, error) {
	payload := map[string]string{"text": text}
	body, err := c.do(ctx, http.MethodPost, "/tweets", payload)
	if err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}

	var env struct {
		Data Post `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return Post{}, fmt.Errorf("decode create response: %w", err)
	}
	c.logger.Info("post published", "post_id", env.Data.ID)
	return env.Data, nil
}

// Repost retweets the given post from the bot's account.
func (c *HTTPClient) Repost(ctx context.Context, postID string) error {
	payload := map[string]string{"tweet_id": postID}
	if _, err := c.do(ctx, http.MethodPost, "/users/"+c.userID+"/retweets", payload); err != nil {
		return fmt.Errorf("repost %s: %w", postID, err)
	}
	return nil
}

// Mentions returns posts mentioning the bot's account since the given time.
// A zero time returns the platform's default window.
func (c *HTTPClient) Mentions(ctx context.Context, since time.Time) ([]Post, error) {
	q := url.Values{}
	q.Set("tweet.fields", "author_id,created_at")
	if !since.IsZero() {
		q.Set("start_time", since.UTC().Format(time.RFC3339))
	}

	body, err := c.do(ctx, http.MethodGet, "/users/"+c.userID+"/mentions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("mentions: %w", err)
	}
	return decodePosts(body)
}

// do runs one rate-limited request and returns the response body.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resetDelay(resp, time.Now())
		c.logger.Warn("platform rate limit hit", "path", path, "retry_after", retryAfter)
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// resetDelay derives the wait duration from the reset header. Missing or
// malformed headers fall back to one minute.
func resetDelay(resp *http.Response, now time.Time) time.Duration {
	const fallback = time.Minute

	raw := resp.Header.Get(rateLimitResetHeader)
	if raw == "" {
		return fallback
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	delay := time.Unix(unix, 0).Sub(now)
	if delay <= 0 {
		return time.Second
	}
	return delay
}

func decodePosts(body []byte) ([]Post, error) {
	var env postsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	posts := make([]Post, 0, len(env.Data))
	for _, d := range env.Data {
		posts = append(posts, Post{ID: d.ID, Text: d.Text, AuthorID: d.AuthorID, CreatedAt: d.CreatedAt})
	}
	return posts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
