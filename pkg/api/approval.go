package api

import (
	"net/http"
	"strings"

	"github.com/ethpandaops/portfolioor/pkg/moderation"
)

type submitRequest struct {
	PostID string `json:"postId"`
	UID    string `json:"uid"`
}

type reviewRequest struct {
	PostID          string `json:"postId"`
	Action          string `json:"action"`
	UID             string `json:"uid"`
	RejectionReason string `json:"rejectionReason"`
}

// handleSubmitPost moves the caller's draft to pending.
func (s *server) handleSubmitPost(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	uid, err := resolveUID(userFromContext(r.Context()), req.UID)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	post, err := s.workflow.Submit(r.Context(), strings.TrimSpace(req.PostID), uid)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeData(w, http.StatusOK, toPostResponse(post), "Post submitted for approval")
}

// handleReviewPost approves or rejects a pending post. The admin role is
// checked by the workflow against the user directory.
func (s *server) handleReviewPost(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	uid, err := resolveUID(userFromContext(r.Context()), req.UID)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	post, err := s.workflow.Review(
		r.Context(), strings.TrimSpace(req.PostID), req.Action, uid, req.RejectionReason,
	)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeData(w, http.StatusOK, toPostResponse(post), "Post "+post.Status)
}

// handleListApprovals lists posts awaiting review, or in the status given
// by ?status=.
func (s *server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	uid, err := resolveUID(userFromContext(r.Context()), q.Get("uid"))
	if err != nil {
		s.fail(w, r, err)

		return
	}

	posts, err := s.workflow.Pending(r.Context(), uid, strings.TrimSpace(q.Get("status")))
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeData(w, http.StatusOK, toPostResponses(posts), "")
}

// moderationEvents is exposed on /config so clients know which review
// actions exist.
var moderationEvents = []moderation.Event{moderation.EventApprove, moderation.EventReject}
