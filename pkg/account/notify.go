package account

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/rhuss/digsite/pkg/observability"
)

// ResetNotice carries what a user needs to complete a password reset.
// Token is the plaintext token and exists nowhere else.
type ResetNotice struct {
	UserID    string
	Email     string
	FullName  string
	Token     string
	Link      string
	ExpiresAt time.Time
}

// Notifier delivers reset notices out of band, typically by email.
type Notifier interface {
	SendPasswordReset(ctx context.Context, n ResetNotice) error
}

// LogNotifier records that a notice was issued without revealing the
// token. It is the default when no mail transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendPasswordReset implements Notifier.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, notice ResetNotice) error {
	n.logger.InfoContext(ctx, "password reset issued",
		"user_id", notice.UserID,
		"email", observability.RedactEmail(notice.Email),
		"expires_at", notice.ExpiresAt,
		"has_link", notice.Link != "",
	)
	return nil
}

// resetLink appends the token to base as the "token" query parameter.
// An empty base yields an empty link.
func resetLink(base, token string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + "token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
