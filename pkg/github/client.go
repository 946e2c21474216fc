// Package github is a read-only client for the GitHub REST API, scoped to
// the repositories and profile of a single account.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the public GitHub REST API.
	DefaultAPIURL = "https://api.github.com"

	httpTimeout  = 10 * time.Second
	reposPerPage = 50
)

// ErrUpstream is returned when GitHub cannot be reached or answers with a
// non-success status.
var ErrUpstream = errors.New("github api unavailable")

// Repo is a public repository as returned by the GitHub API.
type Repo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	Homepage    string    `json:"homepage"`
	Language    string    `json:"language"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Fork        bool      `json:"fork"`
	Topics      []string  `json:"topics"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Owner       Owner     `json:"owner"`
}

// Owner is the account that owns a repository.
type Owner struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// User is a GitHub account profile.
type User struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	HTMLURL     string `json:"html_url"`
}

// API is the subset of GitHub the portfolio reads.
type API interface {
	ListRepos(ctx context.Context, owner string) ([]Repo, error)
	GetUser(ctx context.Context, owner string) (*User, error)
}

// Compile-time interface check.
var _ API = (*Client)(nil)

// Client talks to the GitHub REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client. An empty baseURL selects DefaultAPIURL; an
// empty token makes unauthenticated requests.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

// ListRepos returns the owner's most recently updated repositories, sorted
// by stars and then by last update, newest first.
func (c *Client) ListRepos(ctx context.Context, owner string) ([]Repo, error) {
	q := url.Values{
		"sort":     {"updated"},
		"per_page": {fmt.Sprintf("%d", reposPerPage)},
	}

	var repos []Repo
	if err := c.get(ctx, "/users/"+url.PathEscape(owner)+"/repos?"+q.Encode(), &repos); err != nil {
		return nil, fmt.Errorf("listing repos for %s: %w", owner, err)
	}

	SortRepos(repos)

	return repos, nil
}

// GetUser returns the owner's public profile.
func (c *Client) GetUser(ctx context.Context, owner string) (*User, error) {
	var user User
	if err := c.get(ctx, "/users/"+url.PathEscape(owner), &user); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", owner, err)
	}

	return &user, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)

		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrUpstream, err)
	}

	return nil
}

// SortRepos orders repos by stars, then by last update, both descending.
func SortRepos(repos []Repo) {
	sort.SliceStable(repos, func(i, j int) bool {
		if repos[i].Stars != repos[j].Stars {
			return repos[i].Stars > repos[j].Stars
		}

		return repos[i].UpdatedAt.After(repos[j].UpdatedAt)
	})
}
