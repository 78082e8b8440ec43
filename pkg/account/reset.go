package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/debug"
	"github.com/rhuss/digsite/pkg/observability"
	"github.com/rhuss/digsite/pkg/storage"
)

// RequestReset issues a reset token for the account behind req.Email and
// hands it to the notifier. Unknown and inactive accounts get no token, and
// the caller cannot tell the difference.
func (s *Service) RequestReset(ctx context.Context, req *api.ResetRequest) error {
	if apiErr := api.ValidateResetRequest(req); apiErr != nil {
		return apiErr
	}
	email := api.NormalizeEmail(req.Email)

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Debug("reset requested for unknown email", "email", observability.RedactEmail(email))
			return nil
		}
		return fmt.Errorf("looking up user: %w", err)
	}
	if !u.IsActive {
		slog.Debug("reset requested for inactive user", "user_id", u.ID)
		return nil
	}

	token, err := api.NewResetToken()
	if err != nil {
		return fmt.Errorf("generating reset token: %w", err)
	}
	now := s.now().UTC()
	rt := &ResetToken{
		TokenHash: HashResetToken(token),
		UserID:    u.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.resetTTL()),
	}
	if err := s.resets.CreateResetToken(ctx, rt); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}
	observability.ResetTokensIssuedTotal.Inc()
	debug.Log(debug.Reset, "reset token issued", "user_id", u.ID, "expires_at", rt.ExpiresAt)

	notice := ResetNotice{
		UserID:    u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Token:     token,
		Link:      resetLink(s.cfg.ResetLinkBase, token),
		ExpiresAt: rt.ExpiresAt,
	}
	if err := s.notifier.SendPasswordReset(ctx, notice); err != nil {
		slog.Error("reset notification failed", "user_id", u.ID, "error", err)
	}
	return nil
}

// VerifyReset reports whether token can currently be consumed. It changes
// nothing.
func (s *Service) VerifyReset(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	rt, err := s.resets.GetResetToken(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("loading reset token: %w", err)
	}
	return rt.ValidAt(s.now()), nil
}

// ConsumeReset sets a new password using a reset token. The token is
// consumed in the same store operation that writes the password.
func (s *Service) ConsumeReset(ctx context.Context, req *api.ConsumeResetRequest) error {
	if apiErr := api.ValidateConsumeReset(req, s.cfg.validation()); apiErr != nil {
		return apiErr
	}

	// Skip the hash cost for tokens that are already known to be bad.
	valid, err := s.VerifyReset(ctx, req.Token)
	if err != nil {
		return err
	}
	if !valid {
		observability.AuthFailuresTotal.WithLabelValues("reset_token").Inc()
		return api.NewResetTokenInvalidError()
	}

	hash, err := s.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.resets.ConsumeResetToken(ctx, HashResetToken(req.Token), s.now().UTC(), hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			observability.AuthFailuresTotal.WithLabelValues("reset_token").Inc()
			return api.NewResetTokenInvalidError()
		}
		return fmt.Errorf("consuming reset token: %w", err)
	}
	slog.Info("password reset completed")
	return nil
}

// PurgeExpired removes tokens that can no longer be consumed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.resets.PurgeResetTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purging reset tokens: %w", err)
	}
	if n > 0 {
		observability.ResetTokensPurgedTotal.Add(float64(n))
		slog.Debug("reset tokens purged", "count", n)
	}
	return n, nil
}
