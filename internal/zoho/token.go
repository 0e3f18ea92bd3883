package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	tokenPath = "/oauth/v2/token"

	// Zoho access tokens live for an hour when expires_in is missing from the response.
	defaultTokenLifetime = time.Hour
)

// Credentials identify this client to the Zoho identity provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Credential is a short-lived access token and the instant it stops being usable.
type Credential struct {
	AccessToken string
	Expiry      time.Time
}

// Valid reports whether the credential can still be used at now.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.Expiry)
}

// TokenManager owns the process-wide access token.
// At most one refresh is in flight at any time; concurrent callers wait for it and reuse the result.
type TokenManager struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time

	mu           sync.RWMutex
	refreshToken string
	current      Credential
}

// NewTokenManager creates a token manager that refreshes against accountsURL.
func NewTokenManager(accountsURL string, creds Credentials, httpClient *http.Client, logger zerolog.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenManager{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimSuffix(accountsURL, "/") + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:   httpClient,
		logger:       logger.With().Str("component", "token-manager").Logger(),
		now:          time.Now,
		refreshToken: creds.RefreshToken,
	}
}

// EnsureToken returns a valid access token, refreshing first if the current one has expired.
func (m *TokenManager) EnsureToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.current.Valid(m.now()) {
		token := m.current.AccessToken
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock
	if m.current.Valid(m.now()) {
		return m.current.AccessToken, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.current.AccessToken, nil
}

// ForceRefresh replaces a token the API rejected.
// If the current token is no longer stale, someone else already refreshed it and it is returned as is.
func (m *TokenManager) ForceRefresh(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.AccessToken != stale && m.current.Valid(m.now()) {
		return m.current.AccessToken, nil
	}
	m.current = Credential{}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.current.AccessToken, nil
}

// Current returns a copy of the credential currently held.
func (m *TokenManager) Current() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// refreshLocked exchanges the refresh token for a new access token. Callers must hold mu.
func (m *TokenManager) refreshLocked(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	issuedAt := m.now()
	newToken, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: m.refreshToken}).Token()
	if err != nil {
		m.logger.Error().Err(err).Msg("Access token refresh failed")
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	m.current = Credential{
		AccessToken: newToken.AccessToken,
		Expiry:      issuedAt.Add(expiresIn(newToken, issuedAt)),
	}

	// Zoho does not rotate refresh tokens today, but keep a new one if it ever arrives
	if newToken.RefreshToken != "" && newToken.RefreshToken != m.refreshToken {
		m.refreshToken = newToken.RefreshToken
		m.logger.Info().Msg("Refresh token rotated")
	}

	m.logger.Info().Time("expires_at", m.current.Expiry).Msg("Access token refreshed")
	return nil
}

// expiresIn reads the lifetime the identity provider granted, measured from issuedAt.
func expiresIn(token *oauth2.Token, issuedAt time.Time) time.Duration {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case int64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	if !token.Expiry.IsZero() {
		return token.Expiry.Sub(issuedAt)
	}
	return defaultTokenLifetime
}
