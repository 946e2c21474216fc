// Package moderation implements the blog post review workflow:
// draft -> pending -> approved | rejected.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
)

var (
	// ErrValidation is returned for missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when the target post does not exist.
	ErrNotFound = errors.New("post not found")
	// ErrUnauthorized is returned when the acting identity is unknown or
	// lacks the role the transition requires.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTransition is returned when the event is not allowed from
	// the post's current status.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Event is a moderation event applied to a post.
type Event string

// Moderation events.
const (
	EventSubmit  Event = "submit"
	EventApprove Event = "approve"
	EventReject  Event = "reject"
)

// transitions lists, per event, the only status it may be applied from and
// the status it produces.
var transitions = map[Event]struct{ from, to string }{
	EventSubmit:  {from: store.StatusDraft, to: store.StatusPending},
	EventApprove: {from: store.StatusPending, to: store.StatusApproved},
	EventReject:  {from: store.StatusPending, to: store.StatusRejected},
}

// CanTransition reports whether event may be applied to a post in status
// from, and the resulting status.
func CanTransition(from string, event Event) (string, bool) {
	t, ok := transitions[event]
	if !ok || t.from != from {
		return "", false
	}

	return t.to, true
}

// ParseAction maps a review action ("approve" or "reject") to its event.
func ParseAction(action string) (Event, error) {
	switch Event(strings.ToLower(strings.TrimSpace(action))) {
	case EventApprove:
		return EventApprove, nil
	case EventReject:
		return EventReject, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
}

// Store is the persistence the workflow depends on.
type Store interface {
	GetUserByUID(ctx context.Context, uid string) (*store.User, error)
	GetPost(ctx context.Context, id string) (*store.BlogPost, error)
	ListPosts(ctx context.Context, filter store.PostFilter) ([]store.BlogPost, error)
	TransitionPost(ctx context.Context, post *store.BlogPost, from string) error
}

// Workflow applies moderation transitions to posts.
type Workflow struct {
	log   logrus.FieldLogger
	store Store
	now   func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides the time source used for submission and review
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

// New creates a Workflow over the given store.
func New(log logrus.FieldLogger, st Store, opts ...Option) *Workflow {
	w := &Workflow{
		log:   log.WithField("component", "moderation"),
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Submit moves a draft to pending on behalf of its author.
func (w *Workflow) Submit(
	ctx context.Context, postID, authorUID string,
) (*store.BlogPost, error) {
	if err := requireFields(postID, authorUID); err != nil {
		return nil, err
	}

	author, err := w.lookupUser(ctx, authorUID)
	if err != nil {
		return nil, err
	}

	post, err := w.lookupPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if post.HasAuthor() && post.AuthorUID != author.UID && !author.IsAdmin() {
		return nil, fmt.Errorf("%w: %s is not the author of post %s", ErrUnauthorized, authorUID, postID)
	}

	now := w.now()

	return w.apply(ctx, post, EventSubmit, func(p *store.BlogPost) {
		p.SubmittedAt = &now
		p.RejectionReason = ""
	})
}

// Approve publishes a pending post. The caller must be an admin.
func (w *Workflow) Approve(
	ctx context.Context, postID, adminUID string,
) (*store.BlogPost, error) {
	if err := requireFields(postID, adminUID); err != nil {
		return nil, err
	}

	admin, err := w.lookupAdmin(ctx, adminUID)
	if err != nil {
		return nil, err
	}

	post, err := w.lookupPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	now := w.now()

	return w.apply(ctx, post, EventApprove, func(p *store.BlogPost) {
		p.Published = true
		p.ReviewedAt = &now
		p.ReviewedBy = admin.Email
		p.RejectionReason = ""
	})
}

// Reject unpublishes a pending post with a reason. The caller must be an
// admin and the reason must not be blank.
func (w *Workflow) Reject(
	ctx context.Context, postID, adminUID, reason string,
) (*store.BlogPost, error) {
	if err := requireFields(postID, adminUID); err != nil {
		return nil, err
	}

	admin, err := w.lookupAdmin(ctx, adminUID)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	post, err := w.lookupPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	now := w.now()

	return w.apply(ctx, post, EventReject, func(p *store.BlogPost) {
		p.Published = false
		p.ReviewedAt = &now
		p.ReviewedBy = admin.Email
		p.RejectionReason = reason
	})
}

// Review dispatches an approve or reject action. The caller's role is
// checked before the action is parsed.
func (w *Workflow) Review(
	ctx context.Context, postID, action, adminUID, reason string,
) (*store.BlogPost, error) {
	if err := requireFields(postID, adminUID); err != nil {
		return nil, err
	}

	if _, err := w.lookupAdmin(ctx, adminUID); err != nil {
		return nil, err
	}

	event, err := ParseAction(action)
	if err != nil {
		return nil, err
	}

	if event == EventReject {
		return w.Reject(ctx, postID, adminUID, reason)
	}

	return w.Approve(ctx, postID, adminUID)
}

// Pending lists posts in the given status (pending when empty), most
// recently submitted first. The caller must be an admin.
func (w *Workflow) Pending(
	ctx context.Context, adminUID, status string,
) ([]store.BlogPost, error) {
	if adminUID == "" {
		return nil, fmt.Errorf("%w: uid is required", ErrValidation)
	}

	if _, err := w.lookupAdmin(ctx, adminUID); err != nil {
		return nil, err
	}

	if status == "" {
		status = store.StatusPending
	}

	if !IsStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	posts, err := w.store.ListPosts(ctx, store.PostFilter{
		Status:          status,
		SortBySubmitted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s posts: %w", status, err)
	}

	return posts, nil
}

// IsStatus reports whether s is a known post status.
func IsStatus(s string) bool {
	switch s {
	case store.StatusDraft, store.StatusPending, store.StatusApproved, store.StatusRejected:
		return true
	default:
		return false
	}
}

// apply checks the transition, mutates a copy of post and persists it with
// a conditional write. The caller's post is never modified.
func (w *Workflow) apply(
	ctx context.Context,
	post *store.BlogPost,
	event Event,
	mutate func(*store.BlogPost),
) (*store.BlogPost, error) {
	from := post.Status

	to, ok := CanTransition(from, event)
	if !ok {
		return nil, fmt.Errorf("%w: cannot %s a post in status %s", ErrInvalidTransition, event, from)
	}

	next := *post
	next.Status = to
	mutate(&next)

	if err := w.store.TransitionPost(ctx, &next, from); err != nil {
		if errors.Is(err, store.ErrStale) {
			return nil, fmt.Errorf("%w: post %s changed concurrently", ErrInvalidTransition, post.ID)
		}

		return nil, fmt.Errorf("saving post %s: %w", post.ID, err)
	}

	w.log.WithFields(logrus.Fields{
		"post":  post.ID,
		"event": event,
		"from":  from,
		"to":    to,
	}).Info("Post transitioned")

	return &next, nil
}

func (w *Workflow) lookupUser(ctx context.Context, uid string) (*store.User, error) {
	user, err := w.store.GetUserByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s is not registered", ErrUnauthorized, uid)
		}

		return nil, fmt.Errorf("looking up user %s: %w", uid, err)
	}

	return user, nil
}

func (w *Workflow) lookupAdmin(ctx context.Context, uid string) (*store.User, error) {
	user, err := w.lookupUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	if !user.IsAdmin() {
		return nil, fmt.Errorf("%w: user %s is not an admin", ErrUnauthorized, uid)
	}

	return user, nil
}

func (w *Workflow) lookupPost(ctx context.Context, id string) (*store.BlogPost, error) {
	post, err := w.store.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		return nil, fmt.Errorf("looking up post %s: %w", id, err)
	}

	return post, nil
}

func requireFields(postID, uid string) error {
	switch {
	case strings.TrimSpace(postID) == "":
		return fmt.Errorf("%w: postId is required", ErrValidation)
	case strings.TrimSpace(uid) == "":
		return fmt.Errorf("%w: uid is required", ErrValidation)
	default:
		return nil
	}
}
