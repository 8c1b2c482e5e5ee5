package skuvault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agatticelli/wavepick-sync/internal/auth"
)

const (
	// TokenCookie carries the API token after a browser login
	TokenCookie = "sv-t"

	// minTokenLength filters out the short placeholder values the cookie
	// holds before login completes
	minTokenLength = 100
)

// TokenFromCookies returns the API token set by the login flow, or "" when
// no sv-t cookie carries one
func TokenFromCookies(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if c.Name == TokenCookie && len(c.Value) > minTokenLength {
			return c.Value
		}
	}
	return ""
}

// UseCachedToken adopts a stored, unexpired credential. It reports whether
// one was found.
func (s *Service) UseCachedToken(ctx context.Context) bool {
	s.waitBackground()
	cred, err := s.tokens.Get(ctx, s.source)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			s.logger.LogError(ctx, "check cached token failed", err, "source", s.source)
		} else {
			s.logger.LogDebug(ctx, "no cached token", "source", s.source)
		}
		return false
	}

	s.authenticated.Store(true)
	s.logger.LogInfo(ctx, "using cached token",
		"source", s.source,
		"expires_at", cred.ExpiresAt,
	)
	return true
}

// Authenticate stores the token produced by a login and marks the service
// authenticated. The preflight cache is cleared since every header
// fingerprint changes with the token. An invalidation still pending from
// Logout finishes first so it cannot remove the new credential.
func (s *Service) Authenticate(ctx context.Context, token, username, loginURL string) error {
	s.waitBackground()
	metadata := map[string]string{
		"username":     username,
		"login_url":    loginURL,
		"extracted_at": strconv.FormatInt(s.now().Unix(), 10),
	}
	cred, err := s.tokens.Put(ctx, token, s.source, s.tokenTTL, metadata)
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	s.client.InvalidatePreflight(ctx, "login")
	s.authenticated.Store(true)
	s.logger.LogInfo(ctx, "authenticated",
		"source", cred.Source,
		"expires_at", cred.ExpiresAt,
	)
	return nil
}

// Logout clears the in-memory login state and response caches at once. The
// stored credential is invalidated in the background; Close waits for it.
func (s *Service) Logout(ctx context.Context) {
	s.authenticated.Store(false)
	s.client.ForgetCredential()
	s.client.InvalidatePreflight(ctx, "logout")
	if err := s.ClearCaches(ctx); err != nil {
		s.logger.LogWarn(ctx, "clear caches on logout failed", "error", err)
	}

	bgCtx := context.WithoutCancel(ctx)
	s.bg.Go(func() error {
		if err := s.tokens.Invalidate(bgCtx, s.source); err != nil {
			s.logger.LogError(bgCtx, "invalidate cached token failed", err, "source", s.source)
			s.bgMu.Lock()
			s.bgErr = errors.Join(s.bgErr, err)
			s.bgMu.Unlock()
			return err
		}
		s.logger.LogInfo(bgCtx, "cached token invalidated", "source", s.source)
		return nil
	})
	s.logger.LogInfo(ctx, "logged out")
}

// waitBackground blocks until queued token invalidations finish. Their
// errors stay recorded for Close.
func (s *Service) waitBackground() {
	_ = s.bg.Wait()
}

// Close waits for background tasks and returns their errors
func (s *Service) Close() error {
	_ = s.bg.Wait()
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	err := s.bgErr
	s.bgErr = nil
	return err
}
