package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/gdx/internal/shared"
	"golang.org/x/oauth2"
)

// User is the backend's account representation.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Login exchanges email and password for a token pair, persists it, and
// returns the authenticated user.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", shared.ErrMissingCredentials)
	}

	body := jsonBody(map[string]string{"email": email, "password": password})
	resp, err := c.send(ctx, http.MethodPost, "/auth/login", body, false, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: invalid email or password", shared.ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: login returned status %d", shared.ErrAuthFailed, resp.StatusCode)
	}

	var tokens tokenResponse
	if err := decodeJSON(resp, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token in response", shared.ErrAuthFailed)
	}

	saved := &oauth2.Token{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}
	if err := c.tokens.Save(saved); err != nil {
		return nil, fmt.Errorf("failed to persist tokens: %w", err)
	}

	c.logger.Debug("logged in", "user", tokens.User.Email)

	return &tokens.User, nil
}

// Register creates a new account. It does not log in; callers chain [Client.Login].
func (c *Client) Register(ctx context.Context, username, email, password string) (*User, error) {
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: username, email, and password are required", shared.ErrMissingCredentials)
	}

	body := jsonBody(map[string]string{"username": username, "email": email, "password": password})
	resp, err := c.send(ctx, http.MethodPost, "/auth/register", body, false, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: registration returned status %d", shared.ErrAuthFailed, resp.StatusCode)
	}

	var user User
	if err := decodeJSON(resp, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// Me returns the account tied to the current access token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout discards the stored token pair. Local only; the backend keeps no
// session state beyond the tokens themselves.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}
