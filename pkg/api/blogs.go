package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/content"
	"github.com/ethpandaops/portfolioor/pkg/moderation"
)

var errPostNotFound = fmt.Errorf("post %w", errNotFound)

const (
	displayDateLayout = "January 2, 2006"
	wordsPerMinute    = 200
)

type authorResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type postResponse struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Excerpt         string          `json:"excerpt"`
	Content         string          `json:"content,omitempty"`
	Image           string          `json:"image"`
	Date            string          `json:"date"`
	ReadTime        string          `json:"readTime"`
	Category        string          `json:"category"`
	Published       bool            `json:"published"`
	Status          string          `json:"status"`
	Author          *authorResponse `json:"author,omitempty"`
	SubmittedAt     *time.Time      `json:"submittedAt,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewedAt,omitempty"`
	ReviewedBy      string          `json:"reviewedBy,omitempty"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toPostResponse(p *store.BlogPost) postResponse {
	resp := postResponse{
		ID:              p.ID,
		Title:           p.Title,
		Excerpt:         p.Excerpt,
		Content:         p.Content,
		Image:           p.Image,
		Date:            p.Date,
		ReadTime:        p.ReadTime,
		Category:        p.Category,
		Published:       p.Published,
		Status:          p.Status,
		SubmittedAt:     p.SubmittedAt,
		ReviewedAt:      p.ReviewedAt,
		ReviewedBy:      p.ReviewedBy,
		RejectionReason: p.RejectionReason,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}

	if p.HasAuthor() {
		resp.Author = &authorResponse{
			UID:         p.AuthorUID,
			Email:       p.AuthorEmail,
			DisplayName: p.AuthorName,
		}
	}

	return resp
}

func toPostResponses(posts []store.BlogPost) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for i := range posts {
		out = append(out, toPostResponse(&posts[i]))
	}

	return out
}

// postRequest is the editable part of a post. Status fields are never
// accepted from clients.
type postRequest struct {
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
	Content   string `json:"content"`
	Image     string `json:"image"`
	Date      string `json:"date"`
	ReadTime  string `json:"readTime"`
	Category  string `json:"category"`
	Published *bool  `json:"published"`
	UID       string `json:"uid"`
}

func (req *postRequest) normalize() {
	req.Title = strings.TrimSpace(req.Title)
	req.Excerpt = strings.TrimSpace(req.Excerpt)
	req.Content = strings.TrimSpace(req.Content)
	req.Image = strings.TrimSpace(req.Image)
	req.Date = strings.TrimSpace(req.Date)
	req.ReadTime = strings.TrimSpace(req.ReadTime)
	req.Category = strings.TrimSpace(req.Category)
}

func (req *postRequest) validate() error {
	var missing []string

	if req.Title == "" {
		missing = append(missing, "title")
	}

	if req.Excerpt == "" {
		missing = append(missing, "excerpt")
	}

	if req.Category == "" {
		missing = append(missing, "category")
	}

	if len(missing) > 0 {
		return invalid("missing required fields: %s", strings.Join(missing, ", "))
	}

	return nil
}

// apply copies the request onto post, filling the display date and read
// time when they were left empty.
func (req *postRequest) apply(post *store.BlogPost, now time.Time) {
	post.Title = req.Title
	post.Excerpt = req.Excerpt
	post.Content = req.Content
	post.Image = req.Image
	post.Category = req.Category
	post.Date = req.Date
	post.ReadTime = req.ReadTime

	if post.Date == "" {
		post.Date = now.Format(displayDateLayout)
	}

	if post.ReadTime == "" {
		post.ReadTime = estimateReadTime(post.Content)
	}
}

// estimateReadTime returns "N min read" at 200 words per minute, never
// less than one minute.
func estimateReadTime(text string) string {
	minutes := int(math.Ceil(float64(len(strings.Fields(text))) / wordsPerMinute))
	if minutes < 1 {
		minutes = 1
	}

	return fmt.Sprintf("%d min read", minutes)
}

// canView reports whether the caller may read a post that is not public:
// admins and the post's author.
func canView(user *store.User, post *store.BlogPost) bool {
	if post.IsPublic() {
		return true
	}

	if user == nil {
		return false
	}

	return user.IsAdmin() || (post.HasAuthor() && post.AuthorUID == user.UID)
}

// handleListPosts lists posts. Callers other than admins only see public
// posts, except for their own posts when filtering by their uid.
func (s *server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := userFromContext(r.Context())

	filter := store.PostFilter{
		AuthorUID: strings.TrimSpace(q.Get("uid")),
		Status:    strings.TrimSpace(q.Get("status")),
	}

	if filter.Status != "" && !moderation.IsStatus(filter.Status) {
		s.fail(w, r, invalid("unknown status %q", filter.Status))

		return
	}

	if published := q.Get("published"); published != "" {
		v, err := strconv.ParseBool(published)
		if err != nil {
			s.fail(w, r, invalid("published must be true or false"))

			return
		}

		if v {
			filter.PublicOnly = true
		} else {
			filter.Published = &v
		}
	}

	ownPosts := user != nil && filter.AuthorUID != "" && filter.AuthorUID == user.UID
	if !user.IsAdmin() && !ownPosts {
		filter.PublicOnly = true
		filter.Published = nil
	}

	posts, err := s.store.ListPosts(r.Context(), filter)
	if err != nil {
		s.fail(w, r, fmt.Errorf("listing posts: %w", err))

		return
	}

	writeData(w, http.StatusOK, toPostResponses(posts), "")
}

// loadVisiblePost fetches the post named by the {id} URL parameter,
// hiding non-public posts from callers that may not view them.
func (s *server) loadVisiblePost(r *http.Request) (*store.BlogPost, error) {
	post, err := s.getPost(r)
	if err != nil {
		return nil, err
	}

	if !canView(userFromContext(r.Context()), post) {
		return nil, errPostNotFound
	}

	return post, nil
}

// getPost fetches the post named by the {id} URL parameter.
func (s *server) getPost(r *http.Request) (*store.BlogPost, error) {
	post, err := s.store.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errPostNotFound
		}

		return nil, fmt.Errorf("getting post: %w", err)
	}

	return post, nil
}

// handleGetPost returns a single post.
func (s *server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.loadVisiblePost(r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeData(w, http.StatusOK, toPostResponse(post), "")
}

type postHTMLResponse struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

// handleGetPostHTML returns the post content rendered from Markdown.
func (s *server) handleGetPostHTML(w http.ResponseWriter, r *http.Request) {
	post, err := s.loadVisiblePost(r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	html, err := content.Render(post.Content)
	if err != nil {
		s.fail(w, r, fmt.Errorf("rendering post %s: %w", post.ID, err))

		return
	}

	writeData(w, http.StatusOK, postHTMLResponse{ID: post.ID, HTML: string(html)}, "")
}

// handleCreatePost creates a post. Admin posts skip moderation and are
// stored approved; everyone else creates an unpublished draft they own.
func (s *server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req postRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	req.normalize()

	if err := req.validate(); err != nil {
		s.fail(w, r, err)

		return
	}

	if _, err := resolveUID(user, req.UID); err != nil {
		s.fail(w, r, err)

		return
	}

	post := &store.BlogPost{}
	req.apply(post, time.Now().UTC())

	if user.IsAdmin() {
		post.Status = store.StatusApproved
		post.Published = req.Published == nil || *req.Published
	} else {
		post.Status = store.StatusDraft
		post.Published = false
		post.AuthorUID = user.UID
		post.AuthorEmail = user.Email
		post.AuthorName = user.DisplayName
	}

	if err := s.store.CreatePost(r.Context(), post); err != nil {
		s.fail(w, r, fmt.Errorf("creating post: %w", err))

		return
	}

	s.log.WithField("post", post.ID).
		WithField("status", post.Status).
		Info("Post created")

	writeData(w, http.StatusCreated, toPostResponse(post), "")
}

// handleUpdatePost edits a post's content. Moderation fields are left
// untouched; published is changed only when supplied.
func (s *server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	post, err := s.getPost(r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	var req postRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	req.normalize()

	if err := req.validate(); err != nil {
		s.fail(w, r, err)

		return
	}

	req.apply(post, post.CreatedAt)

	if req.Published != nil {
		post.Published = *req.Published
	}

	if err := s.store.UpdatePost(r.Context(), post); err != nil {
		s.fail(w, r, fmt.Errorf("updating post: %w", err))

		return
	}

	writeData(w, http.StatusOK, toPostResponse(post), "")
}

// handleDeletePost deletes a post and returns it.
func (s *server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	post, err := s.getPost(r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	if err := s.store.DeletePost(r.Context(), post.ID); err != nil {
		s.fail(w, r, fmt.Errorf("deleting post: %w", err))

		return
	}

	s.log.WithField("post", post.ID).Info("Post deleted")

	writeData(w, http.StatusOK, toPostResponse(post), "")
}

// handleTogglePost flips a post's published flag.
func (s *server) handleTogglePost(w http.ResponseWriter, r *http.Request) {
	post, err := s.getPost(r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	post.Published = !post.Published

	if err := s.store.UpdatePost(r.Context(), post); err != nil {
		s.fail(w, r, fmt.Errorf("updating post: %w", err))

		return
	}

	writeData(w, http.StatusOK, toPostResponse(post), "")
}
