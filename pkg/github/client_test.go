package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reposFixture = `[
  {"id": 1, "name": "old-tool", "full_name": "me/old-tool", "description": null,
   "stargazers_count": 3, "forks_count": 0, "language": "Go", "topics": [],
   "updated_at": "2023-01-01T00:00:00Z", "owner": {"login": "me"}},
  {"id": 2, "name": "popular", "full_name": "me/popular", "description": "web app",
   "stargazers_count": 10, "forks_count": 2, "language": "TypeScript", "topics": ["react"],
   "updated_at": "2022-01-01T00:00:00Z", "owner": {"login": "me"}},
  {"id": 3, "name": "new-tool", "full_name": "me/new-tool", "description": "",
   "stargazers_count": 3, "forks_count": 1, "language": null, "topics": ["security"],
   "homepage": "https://new.example", "updated_at": "2024-01-01T00:00:00Z", "owner": {"login": "me"}}
]`

func TestClient_ListRepos(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotAccept string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reposFixture))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", "tok")

	repos, err := c.ListRepos(context.Background(), "me")
	require.NoError(t, err)

	assert.Equal(t, "/users/me/repos", gotPath)
	assert.Equal(t, "per_page=50&sort=updated", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "application/vnd.github.v3+json", gotAccept)

	require.Len(t, repos, 3)
	// Stars first, then most recently updated.
	assert.Equal(t, "popular", repos[0].Name)
	assert.Equal(t, "new-tool", repos[1].Name)
	assert.Equal(t, "old-tool", repos[2].Name)

	assert.Equal(t, []string{"security"}, repos[1].Topics)
	assert.Equal(t, "https://new.example", repos[1].Homepage)
	assert.Empty(t, repos[2].Description)
}

func TestClient_NoTokenSendsNoAuthorization(t *testing.T) {
	var hadAuth bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{"login":"me","public_repos":7,"followers":2}`))
	}))
	t.Cleanup(srv.Close)

	user, err := NewClient(srv.URL, "").GetUser(context.Background(), "me")
	require.NoError(t, err)
	assert.False(t, hadAuth)
	assert.Equal(t, "me", user.Login)
	assert.Equal(t, 7, user.PublicRepos)
}

func TestClient_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)

			_, err := NewClient(srv.URL, "").ListRepos(context.Background(), "me")
			require.ErrorIs(t, err, ErrUpstream)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewClient(url, "").GetUser(context.Background(), "me")
		require.ErrorIs(t, err, ErrUpstream)
	})
}

func TestSortRepos(t *testing.T) {
	now := time.Now()

	repos := []Repo{
		{Name: "a", Stars: 1, UpdatedAt: now.Add(-time.Hour)},
		{Name: "b", Stars: 5, UpdatedAt: now.Add(-48 * time.Hour)},
		{Name: "c", Stars: 1, UpdatedAt: now},
	}

	SortRepos(repos)

	assert.Equal(t, "b", repos[0].Name)
	assert.Equal(t, "c", repos[1].Name)
	assert.Equal(t, "a", repos[2].Name)
}
