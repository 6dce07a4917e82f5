package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/gdx/internal/ingest"
	"github.com/desertthunder/gdx/internal/shared"
	"github.com/desertthunder/gdx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for guideline ingestion.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if r.opener == nil {
		return fmt.Errorf("%w: progress stream opener not initialized", shared.ErrServiceUnavailable)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/gdx-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	outputDir := cmd.String("output")
	if outputDir == "" {
		outputDir = r.config.Ingest.OutputDir
	}

	session := ingest.NewSession(r.client, r.opener, fileLogger)
	defer session.Dispose()

	model := ui.NewModel(ctx, session, outputDir, fileLogger)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
