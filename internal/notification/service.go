package notification

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

// DecisionNotifier emails authors when a moderator decides on their highlight
type DecisionNotifier struct {
	mailer  Mailer
	baseURL string
	logger  *zap.Logger
}

func NewDecisionNotifier(mailer Mailer, baseURL string, logger *zap.Logger) *DecisionNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionNotifier{
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// NotifyDecision sends the author the outcome of moderation. Authors
// without an email address are skipped.
func (n *DecisionNotifier) NotifyDecision(ctx context.Context, item *highlights.Item) error {
	if item.AuthorEmail == nil || strings.TrimSpace(*item.AuthorEmail) == "" {
		n.logger.Debug("author has no email, skipping decision notice", zap.String("item_id", item.ID))
		return nil
	}

	msg, ok := n.decisionMessage(item)
	if !ok {
		return nil
	}
	msg.To = *item.AuthorEmail
	msg.ToName = item.AuthorName

	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify author of %s: %w", item.ID, err)
	}
	return nil
}

func (n *DecisionNotifier) decisionMessage(item *highlights.Item) (*Message, bool) {
	link := n.baseURL + "/highlights"

	switch item.Status {
	case highlights.StatusApproved:
		return &Message{
			Subject: "Your highlight is live",
			Text: fmt.Sprintf("Hi %s,\n\nYour highlight %q was approved and is visible until %s.\n\n%s\n",
				item.AuthorName, item.Title, item.ExpiresAt.UTC().Format("Jan 2, 2006 15:04 MST"), link),
		}, true

	case highlights.StatusRejected:
		reason := "No reason was given."
		if item.RejectionReason != nil {
			reason = *item.RejectionReason
		}
		return &Message{
			Subject: "Your highlight was not approved",
			Text: fmt.Sprintf("Hi %s,\n\nYour highlight %q was not approved.\n\nReason: %s\n",
				item.AuthorName, item.Title, reason),
		}, true

	case highlights.StatusInactive:
		return &Message{
			Subject: "Your highlight was paused",
			Text: fmt.Sprintf("Hi %s,\n\nYour highlight %q has been paused by a moderator.\n",
				item.AuthorName, item.Title),
		}, true
	}
	return nil, false
}
