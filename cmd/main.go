package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/desertthunder/gdx/internal/api"
	"github.com/desertthunder/gdx/internal/ingest"
	"github.com/desertthunder/gdx/internal/progress"
	"github.com/desertthunder/gdx/internal/shared"
	"github.com/desertthunder/gdx/internal/store"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var tokens store.TokenStore = store.NewMemoryTokenStore()
	var uploads *store.UploadRepository

	if db, err := shared.NewDatabase(config.Database.Path); err != nil {
		logger.Warn("database unavailable, credentials will not persist", "error", err)
	} else {
		defer db.Close()
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			logger.Warn("migrations failed, credentials will not persist", "error", err)
		} else {
			tokens = store.NewSQLiteTokenStore(db)
			uploads = store.NewUploadRepository(db)
		}
	}

	httpClient := &http.Client{
		Timeout: time.Duration(config.Server.RequestTimeoutSeconds) * time.Second,
	}
	client := api.NewClient(config.Server.BaseURL, httpClient, tokens, logger)

	// Progress streams stay open for the length of a processing run, so they
	// bypass the request timeout.
	opener := progress.NewOpener(config.Server.BaseURL, &http.Client{}, client.Authorize, logger)

	runner := NewRunner(RunnerOpts{
		Config:     config,
		Client:     client,
		Opener:     ingest.NewStreamOpener(opener),
		Tokens:     tokens,
		Uploads:    uploads,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "gdx",
		Usage:    "Upload guideline PDFs and track their processing",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		err_ := errors.Unwrap(err)
		if errors.Is(err_, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else if errors.Is(err, shared.ErrSessionExpired) {
			logger.Fatal("session expired, run 'gdx auth login' to sign in again")
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}
