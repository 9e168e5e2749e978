package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/gpyt/internal/server"
	"github.com/desertthunder/gpyt/internal/services"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the Google consent flow and saves the token file.
//
// Starts a local HTTP server for the redirect, opens the browser, and exchanges the code for tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Google
	oauthConfig, err := services.NewGoogleOAuthConfig(creds)
	if err != nil {
		return fmt.Errorf("%w: set credentials.google in %s", err, r.configPath)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewOAuthHandler(oauthConfig, state)
	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	srv, err := server.Listen(addr, handler, r.logger)
	if err != nil {
		return err
	}

	authURL := services.AuthURL(oauthConfig, state)
	r.writePlain("→ Opening browser for Google authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	timeout := cmd.Duration("timeout")
	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	token, err := srv.Wait(ctx, timeout)
	if err != nil {
		return err
	}

	if err := shared.SaveToken(creds.TokenFile, token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Token saved to %s\n\n", creds.TokenFile)
	r.writePlain("You can now use: gpyt videos list\n")
	return nil
}

// AuthStatus checks the saved token against both APIs.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	tokenFile := r.config.Credentials.Google.TokenFile
	token, err := shared.LoadToken(tokenFile)
	if err != nil && r.httpClient == nil {
		return err
	}
	if token != nil {
		r.writePlain("Token file: %s\n", tokenFile)
		if !token.Expiry.IsZero() {
			r.writePlain("Access token expires: %s\n", token.Expiry.Local().Format(time.RFC1123))
		}
		r.writePlain("Refresh token: %v\n", token.RefreshToken != "")
	}

	photos, err := r.photosService(ctx)
	if err != nil {
		return err
	}
	youtube, err := r.youtubeService(ctx)
	if err != nil {
		return err
	}

	if err := r.checkServices(ctx, photos, youtube); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}

	channel, err := youtube.Channel(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	r.writePlain("Channel: %s (%s)\n", channel.Snippet.Title, channel.ID)
	return nil
}

// checkServices pings every service and reports each result, returning the failures combined.
func (r *Runner) checkServices(ctx context.Context, svcs ...services.Service) error {
	var errs *multierror.Error
	for _, svc := range svcs {
		if err := svc.Ping(ctx); err != nil {
			r.writePlain("%s: ✗ %v\n", svc.Name(), err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
			continue
		}
		r.writePlain("%s: ✓ Authenticated\n", svc.Name())
	}
	return errs.ErrorOrNil()
}

// AuthLogout removes the saved token.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	tokenFile := r.config.Credentials.Google.TokenFile
	if err := os.Remove(tokenFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.writePlain("No token at %s\n", tokenFile)
			return nil
		}
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	r.writePlain("✓ Removed %s\n", tokenFile)
	return nil
}
