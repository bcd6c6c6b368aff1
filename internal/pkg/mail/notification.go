package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/app/models"
)

// Notification is one of BatchCompleted or BatchFailed
type Notification interface {
	Subject() string
	Body() string
	notification()
}

type BatchCompleted struct {
	SessionID string
	Files     int
}

func (n BatchCompleted) Subject() string {
	return "Your receipts are ready"
}

func (n BatchCompleted) Body() string {
	return fmt.Sprintf("All %d receipts of batch %s were read successfully.\nYou can export them now.\n", n.Files, n.SessionID)
}

func (BatchCompleted) notification() {}

type BatchFailed struct {
	SessionID string
	Files     int
	Failed    []string
}

func (n BatchFailed) Subject() string {
	return "Some receipts could not be read"
}

func (n BatchFailed) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d receipts in batch %s could not be read:\n", len(n.Failed), n.Files, n.SessionID)
	for _, f := range n.Failed {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	b.WriteString("The remaining receipts can still be exported.\n")
	return b.String()
}

func (BatchFailed) notification() {}

// NotificationFor maps a terminal session to its message. Returns nil while still processing.
func NotificationFor(s *models.BatchSession) Notification {
	switch s.Status {
	case models.BatchStatusCompleted:
		return BatchCompleted{SessionID: s.SessionID, Files: len(s.Files)}
	case models.BatchStatusFailed:
		n := BatchFailed{SessionID: s.SessionID, Files: len(s.Files)}
		for _, f := range s.Files {
			if f.Status == models.FileStatusFailed {
				n.Failed = append(n.Failed, fmt.Sprintf("%s: %s", f.Name, f.Error))
			}
		}
		return n
	default:
		return nil
	}
}

// Sender is satisfied by *Mailer
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// UserLookup resolves the recipient of a notification
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// BatchNotifier emails the owner of a batch once it reached a terminal state
type BatchNotifier struct {
	sender Sender
	users  UserLookup
}

func NewBatchNotifier(sender Sender, users UserLookup) *BatchNotifier {
	return &BatchNotifier{sender: sender, users: users}
}

func (n *BatchNotifier) BatchFinished(ctx context.Context, session *models.BatchSession) error {
	msg := NotificationFor(session)
	if msg == nil {
		return nil
	}
	user, err := n.users.GetByID(session.UserID)
	if err != nil {
		return fmt.Errorf("lookup user %d: %w", session.UserID, err)
	}
	if user.Email == "" {
		log.Warnf("[Mail] User %d has no email, skipping notification for %s", user.ID, session.SessionID)
		return nil
	}
	return n.sender.Send(ctx, user.Email, msg.Subject(), msg.Body())
}
