// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// authCommand handles account operations against the backend
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with the ingestion backend",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in and store the token pair locally",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Account password",
						Required: true,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "register",
				Usage: "Create an account, then sign in",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Account username",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Account password",
						Required: true,
					},
				},
				Action: r.AuthRegister,
			},
			{
				Name:   "logout",
				Usage:  "Discard the stored token pair",
				Action: r.AuthLogout,
			},
			{
				Name:  "whoami",
				Usage: "Show the account tied to the stored credentials",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthWhoami,
			},
		},
	}
}

// ingestCommand handles guideline uploads and result retrieval
func ingestCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "ingest",
		Aliases: []string{"in"},
		Usage:   "Upload guideline PDFs and track their processing",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Upload one PDF and follow its progress to the final result",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "file",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "label",
						Aliases:  []string{"l"},
						Usage:    "Guideline label",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory to save the result payload",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Save the result payload to a file",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw payload without rendering",
					},
				},
				Action: r.IngestRun,
			},
			{
				Name:  "bulk",
				Usage: "Upload every PDF in a directory through a worker pool",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "dir",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "label",
						Aliases:  []string{"l"},
						Usage:    "Label applied to every file",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent sessions (defaults to config)",
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Uploads per second (defaults to config)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory to save result payloads",
					},
				},
				Action: r.IngestBulk,
			},
			{
				Name:  "result",
				Usage: "Fetch the result payload for a completed session",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "session",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory to save the result payload",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Save the result payload to a file",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw payload without rendering",
					},
				},
				Action: r.IngestResult,
			},
			{
				Name:  "history",
				Usage: "List recorded uploads, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum rows to show",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.IngestHistory,
			},
		},
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize local configuration and database",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize the database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config.toml from the embedded template",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Destination path",
						Value: "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Interactive upload with a live progress view",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory to save result payloads",
			},
		},
		Action: r.TUI,
	}
}
