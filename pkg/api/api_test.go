package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/config"
	"github.com/ethpandaops/portfolioor/pkg/github"
	"github.com/ethpandaops/portfolioor/pkg/identity"
	"github.com/ethpandaops/portfolioor/pkg/moderation"
	"github.com/ethpandaops/portfolioor/pkg/projects"
)

const testAdminEmail = "admin@example.com"

type fakeRepos struct {
	repos   []github.Repo
	user    *github.User
	err     error
	userErr error
}

func (f *fakeRepos) ListRepos(context.Context, string) ([]github.Repo, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.repos, nil
}

func (f *fakeRepos) GetUser(context.Context, string) (*github.User, error) {
	if f.err != nil {
		return nil, f.err
	}

	if f.userErr != nil {
		return nil, f.userErr
	}

	return f.user, nil
}

type testServer struct {
	t       *testing.T
	srv     *server
	repos   *fakeRepos
	handler http.Handler
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HandlerTimeout: "5s"},
		Auth: config.AuthConfig{
			SessionTTL:          "1h",
			Provider:            config.AuthProviderLocal,
			Verify:              true,
			BootstrapAdminEmail: testAdminEmail,
			Local: config.LocalAuthConfig{
				Secret:   "test-secret",
				TokenTTL: "1h",
			},
		},
		GitHub: config.GitHubConfig{Owner: "octo"},
		Projects: config.ProjectsConfig{
			Featured: []config.FeaturedProject{
				{Title: "Featured One", Description: "static", Category: "Web"},
			},
		},
	}
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	log := testLogger()

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: config.DatabaseDriverSQLite,
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))

	images, err := newLocalImageStore(log, &config.LocalStorageConfig{
		Enabled: true,
		Dir:     t.TempDir(),
	})
	require.NoError(t, err)

	repos := &fakeRepos{
		repos: []github.Repo{
			{ID: 1, Name: "scanner", Language: "Python", Topics: []string{"security"}, Stars: 5, Forks: 1},
			{ID: 2, Name: "site", Language: "TypeScript", Stars: 3, Forks: 2},
		},
		user: &github.User{Login: "octo", PublicRepos: 2},
	}

	s := &server{
		log:       log,
		cfg:       cfg,
		store:     st,
		identity:  identity.NewLocal(log, &cfg.Auth.Local, true, st),
		workflow:  moderation.New(log, st),
		repos:     repos,
		presenter: projects.NewPresenter(&cfg.Projects),
		images:    images,
		done:      make(chan struct{}),
	}

	t.Cleanup(func() {
		close(s.done)
		_ = st.Stop()
	})

	return &testServer{t: t, srv: s, repos: repos, handler: s.buildRouter()}
}

// token signs a user up with the identity provider and returns an ID
// token. The user directory entry is created on first use.
func (ts *testServer) token(email string) string {
	ts.t.Helper()

	p, err := ts.srv.identity.SignUp(context.Background(), email, "hunter22", "")
	require.NoError(ts.t, err)

	return p.Token
}

// uid resolves the user directory uid behind a token.
func (ts *testServer) uid(token string) string {
	ts.t.Helper()

	var user store.User
	ts.ok(http.MethodGet, "/api/v1/auth/me", token, nil, &user)

	return user.UID
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())

	return env
}

// ok performs a request, asserts a 2xx envelope and decodes its data.
func (ts *testServer) ok(method, path, token string, body, out any) envelope {
	ts.t.Helper()

	rec := ts.do(method, path, token, body)
	require.Less(ts.t, rec.Code, 300, rec.Body.String())

	env := decodeEnvelope(ts.t, rec)
	require.True(ts.t, env.Success)

	if out != nil {
		require.NoError(ts.t, json.Unmarshal(env.Data, out))
	}

	return env
}

// status performs a request and asserts its status and failure envelope.
func (ts *testServer) status(want int, method, path, token string, body any) envelope {
	ts.t.Helper()

	rec := ts.do(method, path, token, body)
	require.Equal(ts.t, want, rec.Code, rec.Body.String())

	env := decodeEnvelope(ts.t, rec)
	assert.False(ts.t, env.Success)
	assert.NotEmpty(ts.t, env.Error)

	return env
}

func newPost(title string) map[string]any {
	return map[string]any{
		"title":    title,
		"excerpt":  "An excerpt",
		"content":  "# Heading\n\nSome **bold** text.",
		"category": "Security",
	}
}

func TestHealthAndConfig(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]string
	ts.ok(http.MethodGet, "/api/v1/health", "", nil, &health)
	assert.Equal(t, "ok", health["status"])

	var cfg map[string]any
	ts.ok(http.MethodGet, "/api/v1/config", "", nil, &cfg)
	assert.Equal(t, "local", cfg["auth"].(map[string]any)["provider"])
	assert.Equal(t, "local", cfg["images"].(map[string]any)["storage"])
}

func TestAuth_SessionFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email":       "Ada@Example.com",
		"password":    "hunter22",
		"displayName": "Ada",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var signedUp authResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &signedUp))
	assert.Equal(t, "ada@example.com", signedUp.User.Email)
	assert.Equal(t, store.RoleUser, signedUp.User.Role)
	assert.NotEmpty(t, signedUp.IDToken)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	me := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.AddCookie(cookies[0])

		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		return rec
	}

	rec = me()
	require.Equal(t, http.StatusOK, rec.Code)

	var user store.User
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &user))
	assert.Equal(t, signedUp.User.UID, user.UID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signout", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, me().Code)

	var signedIn authResponse
	ts.ok(http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "ada@example.com", "password": "hunter22",
	}, &signedIn)
	assert.Equal(t, signedUp.User.UID, signedIn.User.UID)
}

func TestAuth_Errors(t *testing.T) {
	ts := newTestServer(t)

	ts.ok(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": "hunter22",
	}, nil)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{
			name:   "duplicate email",
			path:   "/api/v1/auth/signup",
			body:   map[string]string{"email": "ada@example.com", "password": "hunter22"},
			status: http.StatusConflict,
		},
		{
			name:   "malformed email",
			path:   "/api/v1/auth/signup",
			body:   map[string]string{"email": "nope", "password": "hunter22"},
			status: http.StatusBadRequest,
		},
		{
			name:   "wrong password",
			path:   "/api/v1/auth/signin",
			body:   map[string]string{"email": "ada@example.com", "password": "wrong-one"},
			status: http.StatusUnauthorized,
		},
		{
			name:   "invalid body",
			path:   "/api/v1/auth/signin",
			body:   []byte("{"),
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.status(tt.status, http.MethodPost, tt.path, "", tt.body)
		})
	}

	t.Run("me without credentials", func(t *testing.T) {
		ts.status(http.StatusUnauthorized, http.MethodGet, "/api/v1/auth/me", "", nil)
	})

	t.Run("me with forged token", func(t *testing.T) {
		ts.status(http.StatusUnauthorized, http.MethodGet, "/api/v1/auth/me", "not.a.jwt", nil)
	})
}

func TestAuth_BearerProvisionsUsers(t *testing.T) {
	ts := newTestServer(t)

	var user store.User
	ts.ok(http.MethodGet, "/api/v1/auth/me", ts.token("bob@example.com"), nil, &user)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.Equal(t, "bob", user.DisplayName)
	assert.Equal(t, store.RoleUser, user.Role)

	ts.ok(http.MethodGet, "/api/v1/auth/me", ts.token(testAdminEmail), nil, &user)
	assert.Equal(t, store.RoleAdmin, user.Role)
}

func TestBlogs_ModerationFlow(t *testing.T) {
	ts := newTestServer(t)
	author := ts.token("author@example.com")
	admin := ts.token(testAdminEmail)
	authorUID := ts.uid(author)
	adminUID := ts.uid(admin)

	var post postResponse
	ts.ok(http.MethodPost, "/api/v1/blogs", author, newPost("Draft"), &post)
	assert.Equal(t, store.StatusDraft, post.Status)
	assert.False(t, post.Published)
	require.NotNil(t, post.Author)
	assert.Equal(t, authorUID, post.Author.UID)
	assert.Equal(t, "1 min read", post.ReadTime)
	assert.NotEmpty(t, post.Date)

	var list []postResponse
	ts.ok(http.MethodGet, "/api/v1/blogs", "", nil, &list)
	assert.Empty(t, list, "drafts are not public")

	ts.ok(http.MethodGet, "/api/v1/blogs?uid="+authorUID, author, nil, &list)
	assert.Len(t, list, 1, "authors see their own drafts")

	ts.status(http.StatusNotFound, http.MethodGet, "/api/v1/blogs/"+post.ID, "", nil)

	env := ts.ok(http.MethodPost, "/api/v1/blogs/approval", author,
		map[string]string{"postId": post.ID, "uid": authorUID}, &post)
	assert.Equal(t, "Post submitted for approval", env.Message)
	assert.Equal(t, store.StatusPending, post.Status)
	assert.NotNil(t, post.SubmittedAt)

	ts.status(http.StatusForbidden, http.MethodPatch, "/api/v1/blogs/approval", author,
		map[string]string{"postId": post.ID, "action": "approve"})
	ts.status(http.StatusForbidden, http.MethodPatch, "/api/v1/blogs/approval", author,
		map[string]string{"postId": post.ID, "action": "publish"})
	ts.status(http.StatusForbidden, http.MethodPatch, "/api/v1/blogs/approval", author,
		map[string]string{"postId": post.ID, "action": "reject"})
	ts.status(http.StatusForbidden, http.MethodGet, "/api/v1/blogs/approval", author, nil)

	ts.ok(http.MethodGet, "/api/v1/blogs/approval?uid="+adminUID, admin, nil, &list)
	require.Len(t, list, 1)
	assert.Equal(t, post.ID, list[0].ID)

	ts.status(http.StatusBadRequest, http.MethodPatch, "/api/v1/blogs/approval", admin,
		map[string]string{"postId": post.ID, "action": "reject", "rejectionReason": "  "})
	ts.status(http.StatusBadRequest, http.MethodPatch, "/api/v1/blogs/approval", admin,
		map[string]string{"postId": post.ID, "action": "publish"})

	env = ts.ok(http.MethodPatch, "/api/v1/blogs/approval", admin,
		map[string]string{"postId": post.ID, "action": "approve", "uid": adminUID}, &post)
	assert.Equal(t, "Post approved", env.Message)
	assert.Equal(t, store.StatusApproved, post.Status)
	assert.True(t, post.Published)
	assert.Equal(t, testAdminEmail, post.ReviewedBy)
	assert.NotNil(t, post.ReviewedAt)

	ts.ok(http.MethodGet, "/api/v1/blogs?published=true", "", nil, &list)
	require.Len(t, list, 1)
	assert.Equal(t, post.ID, list[0].ID)

	ts.status(http.StatusConflict, http.MethodPatch, "/api/v1/blogs/approval", admin,
		map[string]string{"postId": post.ID, "action": "reject", "rejectionReason": "late"})

	ts.status(http.StatusNotFound, http.MethodPatch, "/api/v1/blogs/approval", admin,
		map[string]string{"postId": "missing", "action": "approve"})
}

func TestBlogs_RejectFlow(t *testing.T) {
	ts := newTestServer(t)
	author := ts.token("author@example.com")
	admin := ts.token(testAdminEmail)

	var post postResponse
	ts.ok(http.MethodPost, "/api/v1/blogs", author, newPost("Draft"), &post)
	ts.ok(http.MethodPost, "/api/v1/blogs/approval", author, map[string]string{"postId": post.ID}, nil)

	ts.ok(http.MethodPatch, "/api/v1/blogs/approval", admin, map[string]string{
		"postId": post.ID, "action": "reject", "rejectionReason": "needs more detail",
	}, &post)
	assert.Equal(t, store.StatusRejected, post.Status)
	assert.False(t, post.Published)
	assert.Equal(t, "needs more detail", post.RejectionReason)

	var list []postResponse
	ts.ok(http.MethodGet, "/api/v1/blogs/approval?status=rejected", admin, nil, &list)
	require.Len(t, list, 1)

	ts.status(http.StatusBadRequest, http.MethodGet, "/api/v1/blogs/approval?status=archived", admin, nil)
}

func TestBlogs_UIDMustMatchCaller(t *testing.T) {
	ts := newTestServer(t)
	author := ts.token("author@example.com")

	var post postResponse
	ts.ok(http.MethodPost, "/api/v1/blogs", author, newPost("Draft"), &post)

	ts.status(http.StatusForbidden, http.MethodPost, "/api/v1/blogs/approval", author,
		map[string]string{"postId": post.ID, "uid": "someone-else"})

	body := newPost("Other")
	body["uid"] = "someone-else"
	ts.status(http.StatusForbidden, http.MethodPost, "/api/v1/blogs", author, body)
}

func TestBlogs_AdminDirectCreate(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(testAdminEmail)

	var post postResponse
	ts.ok(http.MethodPost, "/api/v1/blogs", admin, newPost("Announcement"), &post)
	assert.Equal(t, store.StatusApproved, post.Status)
	assert.True(t, post.Published)
	assert.Nil(t, post.Author)

	hidden := newPost("Hidden")
	hidden["published"] = false

	var hiddenPost postResponse
	ts.ok(http.MethodPost, "/api/v1/blogs", admin, hidden, &hiddenPost)
	assert.Equal(t, store.StatusApproved, hiddenPost.Status)
	assert.False(t, hiddenPost.Published)

	var list []postResponse
	ts.ok(http.MethodGet, "/api/v1/blogs?published=true", "", nil, &list)
	require.Len(t, list, 1)
	assert.Equal(t, post.ID, list[0].ID)

	ts.ok(http.MethodPatch, "/api/v1/blogs/"+hiddenPost.ID+"/toggle", admin, nil, &hiddenPost)
	assert.True(t, hiddenPost.Published)

	ts.ok(http.MethodGet, "/api/v1/blogs?published=true", "", nil, &list)
	assert.Len(t, list, 2)

	ts.ok(http.MethodGet, "/api/v1/blogs?published=false", admin, nil, &list)
	assert.Empty(t, list)
}

func TestBlogs_AdminCRUD(t *testing.T) {
	ts := newTestServer(t)
	user := ts.token("user@example.com")
	admin := ts.token(testAdminEmail)

	var post postResponse
	ts.ok(http.MethodPost, "/api/v1/blogs", admin, newPost("Original"), &post)

	update := newPost("Updated")
	update["readTime"] = "7 min read"

	ts.status(http.StatusForbidden, http.MethodPut, "/api/v1/blogs/"+post.ID, user, update)
	ts.status(http.StatusForbidden, http.MethodDelete, "/api/v1/blogs/"+post.ID, user, nil)
	ts.status(http.StatusForbidden, http.MethodPatch, "/api/v1/blogs/"+post.ID+"/toggle", user, nil)
	ts.status(http.StatusUnauthorized, http.MethodDelete, "/api/v1/blogs/"+post.ID, "", nil)

	var updated postResponse
	ts.ok(http.MethodPut, "/api/v1/blogs/"+post.ID, admin, update, &updated)
	assert.Equal(t, "Updated", updated.Title)
	assert.Equal(t, "7 min read", updated.ReadTime)
	assert.Equal(t, store.StatusApproved, updated.Status)
	assert.True(t, updated.Published)

	ts.status(http.StatusBadRequest, http.MethodPut, "/api/v1/blogs/"+post.ID, admin,
		map[string]string{"title": "only a title"})
	ts.status(http.StatusNotFound, http.MethodPut, "/api/v1/blogs/missing", admin, update)

	ts.ok(http.MethodGet, "/api/v1/blogs/"+post.ID, "", nil, &updated)
	assert.Equal(t, "Updated", updated.Title)

	ts.ok(http.MethodDelete, "/api/v1/blogs/"+post.ID, admin, nil, nil)
	ts.status(http.StatusNotFound, http.MethodGet, "/api/v1/blogs/"+post.ID, "", nil)
	ts.status(http.StatusNotFound, http.MethodDelete, "/api/v1/blogs/"+post.ID, admin, nil)
}

func TestBlogs_Validation(t *testing.T) {
	ts := newTestServer(t)
	user := ts.token("user@example.com")

	env := ts.status(http.StatusBadRequest, http.MethodPost, "/api/v1/blogs", user,
		map[string]string{"content": "body"})
	assert.Contains(t, env.Error, "title, excerpt, category")

	ts.status(http.StatusBadRequest, http.MethodGet, "/api/v1/blogs?status=archived", "", nil)
	ts.status(http.StatusBadRequest, http.MethodGet, "/api/v1/blogs?published=maybe", "", nil)
	ts.status(http.StatusBadRequest, http.MethodPost, "/api/v1/blogs/approval", user,
		map[string]string{})
}

func TestBlogs_RenderedHTML(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(testAdminEmail)

	body := newPost("Rendered")
	body["content"] = "# Title\n\n<script>alert(1)</script>\n\nSome **bold** text."

	var post postResponse
	ts.ok(http.MethodPost, "/api/v1/blogs", admin, body, &post)

	var rendered postHTMLResponse
	ts.ok(http.MethodGet, "/api/v1/blogs/"+post.ID+"/html", "", nil, &rendered)
	assert.Equal(t, post.ID, rendered.ID)
	assert.Contains(t, rendered.HTML, "<strong>bold</strong>")
	assert.NotContains(t, rendered.HTML, "<script>")
}

func TestProjectSettings(t *testing.T) {
	ts := newTestServer(t)
	user := ts.token("user@example.com")
	admin := ts.token(testAdminEmail)

	var payload visibilityPayload
	ts.ok(http.MethodGet, "/api/v1/settings/projects", "", nil, &payload)
	assert.Empty(t, payload.Visibility)

	hide := map[string]any{"visibility": map[string]bool{"1": false}}

	ts.status(http.StatusUnauthorized, http.MethodPost, "/api/v1/settings/projects", "", hide)
	ts.status(http.StatusForbidden, http.MethodPost, "/api/v1/settings/projects", user, hide)
	ts.status(http.StatusBadRequest, http.MethodPost, "/api/v1/settings/projects", admin,
		map[string]any{"visibility": map[string]bool{"scanner": false}})
	ts.status(http.StatusBadRequest, http.MethodPost, "/api/v1/settings/projects", admin,
		map[string]any{})

	ts.ok(http.MethodPost, "/api/v1/settings/projects", admin, hide, &payload)
	assert.Equal(t, map[string]bool{"1": false}, payload.Visibility)

	ts.ok(http.MethodGet, "/api/v1/settings/projects", "", nil, &payload)
	assert.Equal(t, map[string]bool{"1": false}, payload.Visibility)

	var list []projects.Project
	ts.ok(http.MethodGet, "/api/v1/projects", "", nil, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "site", list[0].Title)
	assert.Equal(t, projects.CategoryWeb, list[0].Category)
}

func TestProjects_AllRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	user := ts.token("user@example.com")
	admin := ts.token(testAdminEmail)

	ts.ok(http.MethodPost, "/api/v1/settings/projects", admin,
		map[string]any{"visibility": map[string]bool{"1": false}}, nil)

	ts.status(http.StatusUnauthorized, http.MethodGet, "/api/v1/projects?all=true", "", nil)
	ts.status(http.StatusForbidden, http.MethodGet, "/api/v1/projects?all=true", user, nil)

	var list []projects.Project
	ts.ok(http.MethodGet, "/api/v1/projects?all=true", admin, nil, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "scanner", list[0].Title)
	assert.False(t, list[0].Visible)
	assert.Equal(t, projects.CategorySecurity, list[0].Category)
	assert.True(t, list[1].Visible)
}

func TestProjects_FallbackToFeatured(t *testing.T) {
	ts := newTestServer(t)
	ts.repos.err = github.ErrUpstream

	var list []projects.Project
	env := ts.ok(http.MethodGet, "/api/v1/projects", "", nil, &list)
	assert.Equal(t, "Showing featured projects", env.Message)
	require.Len(t, list, 1)
	assert.Equal(t, "Featured One", list[0].Title)
	assert.True(t, list[0].Featured)

	var stats statsResponse
	env = ts.ok(http.MethodGet, "/api/v1/projects/stats", "", nil, &stats)
	assert.Equal(t, "GitHub data is temporarily unavailable", env.Message)
	assert.Nil(t, stats.Profile)
	assert.Zero(t, stats.Stats.TotalRepos)
	assert.Empty(t, stats.Stats.Languages)
}

func TestProjects_NoOwnerServesFeatured(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.repos = nil

	var list []projects.Project
	ts.ok(http.MethodGet, "/api/v1/projects", "", nil, &list)
	require.Len(t, list, 1)

	ts.status(http.StatusNotFound, http.MethodGet, "/api/v1/projects/stats", "", nil)
}

func TestProjectStats(t *testing.T) {
	ts := newTestServer(t)

	var stats statsResponse
	env := ts.ok(http.MethodGet, "/api/v1/projects/stats", "", nil, &stats)
	require.NotNil(t, stats.Profile)
	assert.Equal(t, "octo", stats.Profile.Login)
	assert.Equal(t, 2, stats.Stats.TotalRepos)
	assert.Equal(t, 8, stats.Stats.TotalStars)
	assert.Equal(t, 3, stats.Stats.TotalForks)
	assert.Equal(t, []string{"Python", "TypeScript"}, stats.Stats.Languages)
	assert.Empty(t, env.Message)

	// A profile failure keeps the repository totals.
	ts.repos.userErr = github.ErrUpstream

	stats = statsResponse{}
	env = ts.ok(http.MethodGet, "/api/v1/projects/stats", "", nil, &stats)
	assert.Equal(t, "GitHub data is temporarily unavailable", env.Message)
	assert.Nil(t, stats.Profile)
	assert.Equal(t, 2, stats.Stats.TotalRepos)
	assert.Equal(t, 8, stats.Stats.TotalStars)
}

func TestUsers(t *testing.T) {
	ts := newTestServer(t)
	user := ts.token("user@example.com")
	admin := ts.token(testAdminEmail)
	userUID := ts.uid(user)
	adminUID := ts.uid(admin)

	env := ts.ok(http.MethodPost, "/api/v1/users", user, map[string]string{
		"uid": userUID, "email": "user@example.com", "displayName": "User",
	}, nil)
	assert.Equal(t, "User already exists", env.Message)

	ts.status(http.StatusBadRequest, http.MethodPost, "/api/v1/users", user,
		map[string]string{"uid": userUID})
	ts.status(http.StatusForbidden, http.MethodPost, "/api/v1/users", user, map[string]string{
		"uid": "other", "email": "other@example.com", "displayName": "Other",
	})

	rec := ts.do(http.MethodPost, "/api/v1/users", admin, map[string]string{
		"uid": "other", "email": "Other@Example.com", "displayName": "Other",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created store.User
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &created))
	assert.Equal(t, "other@example.com", created.Email)
	assert.Equal(t, store.RoleUser, created.Role)

	var got store.User
	ts.ok(http.MethodGet, "/api/v1/users?uid="+userUID, user, nil, &got)
	assert.Equal(t, "user@example.com", got.Email)

	ts.status(http.StatusForbidden, http.MethodGet, "/api/v1/users?uid="+adminUID, user, nil)
	ts.status(http.StatusBadRequest, http.MethodGet, "/api/v1/users", user, nil)
	ts.status(http.StatusNotFound, http.MethodGet, "/api/v1/users?uid=missing", admin, nil)

	var all []store.User
	ts.ok(http.MethodGet, "/api/v1/users", admin, nil, &all)
	assert.Len(t, all, 3)
}

func TestUsers_PromoteAdmin(t *testing.T) {
	ts := newTestServer(t)
	user := ts.token("user@example.com")
	admin := ts.token(testAdminEmail)
	userUID := ts.uid(user)

	ts.status(http.StatusForbidden, http.MethodPost, "/api/v1/users/promote-admin", user,
		map[string]string{"email": "user@example.com"})
	ts.status(http.StatusNotFound, http.MethodPost, "/api/v1/users/promote-admin", admin,
		map[string]string{"email": "nobody@example.com"})

	var promoted store.User
	env := ts.ok(http.MethodPost, "/api/v1/users/promote-admin", admin,
		map[string]string{"email": "USER@example.com"}, &promoted)
	assert.Equal(t, "User promoted to admin", env.Message)
	assert.Equal(t, store.RoleAdmin, promoted.Role)
	assert.Equal(t, userUID, promoted.UID)

	// The new role applies on the very next request: the review now gets
	// past the admin check and fails on the unknown post instead.
	ts.status(http.StatusNotFound, http.MethodPatch, "/api/v1/blogs/approval", user,
		map[string]string{"postId": "missing", "action": "approve"})
}

func TestUsers_BootstrapAdminSelfPromotion(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(testAdminEmail)
	adminUID := ts.uid(admin)

	user, err := ts.srv.store.GetUserByUID(context.Background(), adminUID)
	require.NoError(t, err)
	require.NoError(t, ts.srv.store.UpdateUserRole(context.Background(), user.ID, store.RoleUser))

	var promoted store.User
	ts.ok(http.MethodPost, "/api/v1/users/promote-admin", admin, nil, &promoted)
	assert.Equal(t, store.RoleAdmin, promoted.Role)
}

func TestImages_LocalUploadAndServe(t *testing.T) {
	ts := newTestServer(t)
	user := ts.token("user@example.com")

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	ts.status(http.StatusUnauthorized, http.MethodPost, "/api/v1/images", "", png)
	ts.status(http.StatusBadRequest, http.MethodPost, "/api/v1/images", user, []byte("<html>not an image</html>"))

	var uploaded imageResponse
	ts.ok(http.MethodPost, "/api/v1/images", user, png, &uploaded)
	assert.Regexp(t, `^images/[0-9a-f-]{36}\.png$`, uploaded.Key)
	assert.Equal(t, "/api/v1/"+uploaded.Key, uploaded.URL)

	rec := ts.do(http.MethodGet, uploaded.URL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, png, rec.Body.Bytes())

	ts.status(http.StatusNotFound, http.MethodGet, "/api/v1/images/missing.png", "", nil)
}

func TestImages_S3RedirectsToPresignedURL(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.images = nil
	ts.srv.presigner = newTestPresigner()
	user := ts.token("user@example.com")

	var uploaded imageResponse
	ts.ok(http.MethodPost, "/api/v1/images", user, map[string]string{"contentType": "image/jpeg"}, &uploaded)
	assert.Regexp(t, `^images/[0-9a-f-]{36}\.jpg$`, uploaded.Key)
	require.NotNil(t, uploaded.Upload)
	assert.Equal(t, http.MethodPut, uploaded.Upload.Method)

	ts.status(http.StatusBadRequest, http.MethodPost, "/api/v1/images", user,
		map[string]string{"contentType": "image/svg+xml"})

	rec := ts.do(http.MethodGet, uploaded.URL, "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/test-bucket/"+uploaded.Key)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = config.RateLimitConfig{
			Enabled:       true,
			Auth:          config.RateLimitTier{RequestsPerMinute: 1},
			Public:        config.RateLimitTier{RequestsPerMinute: 1},
			Authenticated: config.RateLimitTier{RequestsPerMinute: 1},
		}
	})

	ts.ok(http.MethodGet, "/api/v1/blogs", "", nil, nil)
	ts.status(http.StatusTooManyRequests, http.MethodGet, "/api/v1/blogs", "", nil)

	// Health checks are not limited.
	ts.ok(http.MethodGet, "/api/v1/health", "", nil, nil)
}

func TestSessionExpiry(t *testing.T) {
	ts := newTestServer(t)

	user, err := ts.srv.provisionUser(context.Background(), &identity.Principal{
		UID: "uid-1", Email: "old@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, ts.srv.store.CreateSession(context.Background(), &store.Session{
		Token:     "expired-token",
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "expired-token"})

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err = ts.srv.store.GetSessionByToken(context.Background(), "expired-token")
	require.ErrorIs(t, err, store.ErrNotFound)
}
