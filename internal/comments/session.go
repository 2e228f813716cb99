// Package comments owns the comment lifecycle of one rendered post view:
// loading the existing thread and the submission token, validating the draft
// and orchestrating the two-strategy submit transport. A Session lives for a
// single request and dies with it; the only state shared between requests is
// the in-flight Guard.
package comments

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/imsunorg/blog-front/internal/upstream"
	"go.uber.org/zap"
)

// Gateway is the slice of the upstream client a session needs.
type Gateway interface {
	ListComments(ctx context.Context, cid int) ([]upstream.Comment, error)
	GetToken(ctx context.Context, cid int) (string, error)
	SubmitCommentJSON(ctx context.Context, payload upstream.CommentPayload) (*upstream.SubmitReceipt, error)
	SubmitCommentForm(ctx context.Context, payload upstream.CommentPayload) error
}

// Outcome tells callers how much we actually know about a submission.
// The original front end assumed success whenever nothing threw; here the
// three cases are kept apart.
type Outcome string

const (
	// OutcomeConfirmed means the server acknowledged the comment with a
	// success envelope.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeUnconfirmedSent means the request reached the server but no
	// usable acknowledgement came back (the form fallback, or an
	// unreadable 2xx body).
	OutcomeUnconfirmedSent Outcome = "unconfirmed-sent"
	// OutcomeRejected means validation failed locally or the server
	// refused the comment; nothing may have been stored.
	OutcomeRejected Outcome = "rejected"
)

// Draft is the unsaved comment form state. It travels only inside the request
// that carries it; a rejected draft is echoed back to its own submitter and
// never stored server-side.
type Draft struct {
	Author string
	Email  string
	URL    string
	Text   string
	Parent int64 // 0 = top-level
}

// SubmitResult is what Submit reports back to the view layer.
type SubmitResult struct {
	Outcome Outcome
	Message string
}

const defaultSubmitBudget = 15 * time.Second

// Session holds the comment state for one content item for the duration of
// one request. It is not safe for concurrent use and is not meant to be: each
// request builds its own.
type Session struct {
	cid   int
	api   Gateway
	guard *Guard
	log   *zap.Logger

	submitBudget time.Duration

	token    string
	comments []upstream.Comment
}

// NewSession creates a session for the given content id. Sessions sharing a
// guard reject duplicate in-flight submissions for the same item.
func NewSession(api Gateway, guard *Guard, cid int, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if guard == nil {
		guard = NewGuard()
	}
	return &Session{
		cid:          cid,
		api:          api,
		guard:        guard,
		log:          log,
		comments:     []upstream.Comment{},
		submitBudget: defaultSubmitBudget,
	}
}

// CID returns the content item this session belongs to.
func (s *Session) CID() int { return s.cid }

// Load fetches the comment thread and, unless one was seeded, the submission
// token. The two fetches run concurrently and fail independently: a comments
// failure leaves an empty thread, a token failure leaves submission disabled.
func (s *Session) Load(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		list, err := s.api.ListComments(ctx, s.cid)
		if err != nil {
			s.log.Warn("load comments failed", zap.Int("cid", s.cid), zap.Error(err))
		}
		s.comments = list
	}()

	if s.token == "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := s.api.GetToken(ctx, s.cid)
			if err != nil {
				s.log.Warn("load token failed", zap.Int("cid", s.cid), zap.Error(err))
				return
			}
			s.token = token
		}()
	}

	wg.Wait()
}

// SeedToken stores a token obtained elsewhere (the post endpoint attaches
// one) so Load skips the token round-trip.
func (s *Session) SeedToken(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	s.token = token
}

// Comments returns the loaded thread.
func (s *Session) Comments() []upstream.Comment {
	return s.comments
}

// TokenReady reports whether a submission token is held. Submission stays
// disabled until this is true.
func (s *Session) TokenReady() bool {
	return s.token != ""
}

// Submit validates the draft and, when the guards pass, runs the transport
// strategies. Guard violations (empty required field, missing token, a
// duplicate submission in flight for the same item) never issue a network
// call.
func (s *Session) Submit(ctx context.Context, draft Draft) SubmitResult {
	author := strings.TrimSpace(draft.Author)
	email := strings.TrimSpace(draft.Email)
	text := strings.TrimSpace(draft.Text)
	if author == "" || email == "" || text == "" {
		return SubmitResult{Outcome: OutcomeRejected, Message: "name, email and comment text are required"}
	}
	if s.token == "" {
		return SubmitResult{Outcome: OutcomeRejected, Message: "comment submission unavailable: no token issued"}
	}
	if !s.guard.acquire(s.cid) {
		return SubmitResult{Outcome: OutcomeRejected, Message: "a submission is already in progress"}
	}
	defer s.guard.release(s.cid)

	payload := upstream.CommentPayload{
		Author: author,
		Mail:   email,
		URL:    strings.TrimSpace(draft.URL),
		Text:   text,
		Parent: draft.Parent,
		CID:    s.cid,
		Token:  s.token,
	}

	outcome, err := s.send(ctx, payload)
	if outcome == OutcomeRejected {
		if err != nil {
			s.log.Warn("comment rejected", zap.Int("cid", s.cid), zap.Error(err))
		}
		return SubmitResult{Outcome: OutcomeRejected, Message: "comment submission failed, please try again later"}
	}
	return SubmitResult{Outcome: outcome}
}
