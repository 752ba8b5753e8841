// Package oauth2 obtains and refreshes the tokens used for XOAUTH2 IMAP logins.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/oauth2"
)

// ErrNoToken means the account has never been authorized.
var ErrNoToken = errors.New("no OAuth2 token stored, run the oauth2 login command first")

// TokenManager handles OAuth2 token acquisition and refresh
type TokenManager struct {
	config    *oauth2.Config
	token     *oauth2.Token
	fs        afero.Fs
	logger    *slog.Logger
	mu        sync.Mutex
	tokenFile string
}

// NewTokenManager loads <tokenDir>/<accountID>.json when present.
func NewTokenManager(fs afero.Fs, config *oauth2.Config, tokenDir, accountID string, logger *slog.Logger) (*TokenManager, error) {
	if err := fs.MkdirAll(tokenDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}

	tm := &TokenManager{
		config:    config,
		fs:        fs,
		logger:    logger,
		tokenFile: filepath.Join(tokenDir, accountID+".json"),
	}

	token, err := tm.loadToken()
	if err != nil {
		logger.Warn("failed to load OAuth2 token", "error", err)
	} else if token != nil {
		tm.token = token
		logger.Debug("loaded existing OAuth2 token",
			"expires_at", token.Expiry.Format(time.RFC3339))
	}

	return tm, nil
}

// AuthCodeURL is the consent page the user has to visit.
func (tm *TokenManager) AuthCodeURL(state string) string {
	return tm.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (tm *TokenManager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := tm.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := tm.SetToken(token); err != nil {
		return nil, err
	}
	return token, nil
}

// GetToken returns a valid token, refreshing it when expired.
func (tm *TokenManager) GetToken(ctx context.Context) (*oauth2.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token == nil {
		return nil, ErrNoToken
	}
	if tm.token.Valid() {
		return tm.token, nil
	}
	if tm.token.RefreshToken == "" {
		return nil, fmt.Errorf("token expired and no refresh token available")
	}

	tm.logger.Debug("refreshing OAuth2 token using refresh token")
	newToken, err := tm.config.TokenSource(ctx, tm.token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	tm.token = newToken

	if err := tm.saveToken(newToken); err != nil {
		tm.logger.Warn("failed to save refreshed OAuth2 token", "error", err)
	}
	return newToken, nil
}

// SetToken sets the OAuth2 token and saves it to disk
func (tm *TokenManager) SetToken(token *oauth2.Token) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.token = token
	return tm.saveToken(token)
}

// GetAccessToken returns just the access token string
func (tm *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	token, err := tm.GetToken(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func (tm *TokenManager) loadToken() (*oauth2.Token, error) {
	data, err := afero.ReadFile(tm.fs, tm.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

func (tm *TokenManager) saveToken(token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := afero.WriteFile(tm.fs, tm.tokenFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
