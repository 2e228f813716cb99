package comments

import (
	"context"

	"github.com/imsunorg/blog-front/internal/upstream"
	"go.uber.org/zap"
)

// strategy is one transport attempt. Strategies run in order under a single
// shared timeout budget; a later strategy only fires when the previous one
// failed at the transport level, never on an application rejection.
type strategy struct {
	name string
	send func(ctx context.Context, payload upstream.CommentPayload) (Outcome, error)
}

func (s *Session) strategies() []strategy {
	return []strategy{
		{
			name: "json",
			send: func(ctx context.Context, payload upstream.CommentPayload) (Outcome, error) {
				receipt, err := s.api.SubmitCommentJSON(ctx, payload)
				if err != nil {
					return OutcomeRejected, err
				}
				if receipt == nil {
					// Accepted with an unreadable body.
					return OutcomeUnconfirmedSent, nil
				}
				return OutcomeConfirmed, nil
			},
		},
		{
			name: "form",
			send: func(ctx context.Context, payload upstream.CommentPayload) (Outcome, error) {
				if err := s.api.SubmitCommentForm(ctx, payload); err != nil {
					return OutcomeRejected, err
				}
				// Fire-and-forget: success or failure is unobservable.
				return OutcomeUnconfirmedSent, nil
			},
		},
	}
}

// send walks the strategy chain. The returned Outcome is OutcomeRejected
// only when every applicable strategy failed or the server rejected the
// comment outright.
func (s *Session) send(ctx context.Context, payload upstream.CommentPayload) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.submitBudget)
	defer cancel()

	chain := s.strategies()
	var lastErr error
	for i, st := range chain {
		outcome, err := st.send(ctx, payload)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if !upstream.IsTransport(err) || i == len(chain)-1 {
			return OutcomeRejected, err
		}
		s.log.Warn("comment transport failed, falling back",
			zap.String("strategy", st.name),
			zap.Int("cid", s.cid),
			zap.Error(err),
		)
	}
	return OutcomeRejected, lastErr
}
