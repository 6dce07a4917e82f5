package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// AuthLogin signs in with email and password and stores the token pair.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	password := cmd.String("password")

	r.logger.Info("logging in", "email", email)

	user, err := r.client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	return r.writePlain("✓ Logged in as %s <%s>\n", user.Username, user.Email)
}

// AuthRegister creates an account and signs in with the new credentials.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	username := cmd.String("username")
	email := cmd.String("email")
	password := cmd.String("password")

	r.logger.Info("registering account", "username", username)

	user, err := r.client.Register(ctx, username, email, password)
	if err != nil {
		return err
	}
	r.writePlain("✓ Account created for %s\n", user.Username)

	if _, err := r.client.Login(ctx, email, password); err != nil {
		return fmt.Errorf("account created but login failed: %w", err)
	}

	return r.writePlain("✓ Logged in as %s\n", user.Username)
}

// AuthLogout discards the stored token pair.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.client.Logout(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	r.logger.Info("credentials cleared")
	return r.writePlain("✓ Logged out\n")
}

// AuthWhoami shows the account tied to the stored credentials.
func (r *Runner) AuthWhoami(ctx context.Context, cmd *cli.Command) error {
	user, err := r.client.Me(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}

	return r.writePlain("%s <%s> (id %s)\n", user.Username, user.Email, user.ID)
}
