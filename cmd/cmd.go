// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func backendFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "backend",
		Aliases: []string{"b"},
		Usage:   "Ledger backend: sentinel, sqlite or s3 (default from config)",
	}
}

// setupCommand handles database and config initialization
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize local state",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Create the run history database and apply migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the latest migration",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write an example config file to --config",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// authCommand handles the Google OAuth token
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Google authorization",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize Google Photos and YouTube access in the browser",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: 2 * time.Minute,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Check the saved token against both APIs",
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Remove the saved token",
				Action: r.AuthLogout,
			},
		},
	}
}

// videosCommand browses the source library
func videosCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "videos",
		Usage: "Google Photos video operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List videos in the library",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of videos to return, 0 for all",
						Value: 50,
					},
					&cli.StringFlag{
						Name:  "page-token",
						Usage: "Continue from a previous listing",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.VideosList,
			},
		},
	}
}

func migrateFlags() []cli.Flag {
	return []cli.Flag{
		backendFlag(),
		&cli.BoolFlag{
			Name:    "interactive",
			Aliases: []string{"i"},
			Usage:   "Review each upload in the terminal UI",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "List pending videos without uploading",
		},
		&cli.IntFlag{
			Name:  "max-items",
			Usage: "Stop after this many videos, 0 for no limit",
		},
		&cli.IntFlag{
			Name:  "max-pages",
			Usage: "Stop after this many listing pages, 0 for no limit",
		},
		&cli.StringFlag{
			Name:  "start-token",
			Usage: "Resume listing from a page token printed by an earlier run",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Videos of a page uploaded concurrently (default from config)",
		},
		&cli.StringFlag{
			Name:  "visibility",
			Usage: "private, unlisted or public (default from config)",
		},
		&cli.StringFlag{
			Name:  "tags",
			Usage: "Comma separated tags added to every upload (default from config)",
		},
	}
}

// migrateCommand runs the migration
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Move videos from Google Photos to YouTube",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Upload every video not yet recorded in the ledger",
				Flags:  migrateFlags(),
				Action: r.MigrateRun,
			},
		},
	}
}

// tuiCommand is a shortcut for migrate run --interactive
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Run an interactive migration in the terminal UI",
		Flags:  migrateFlags(),
		Action: r.TUI,
	}
}

func ledgerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Inspect and edit migration progress",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print migrated videos",
				Flags: []cli.Flag{
					backendFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "text, json, csv or markdown",
						Value:   "text",
					},
				},
				Action: r.LedgerShow,
			},
			{
				Name:  "export",
				Usage: "Write the ledger to a file",
				Flags: []cli.Flag{
					backendFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "json, csv, markdown or text",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
				},
				Action: r.LedgerExport,
			},
			{
				Name:  "import",
				Usage: "Merge a json or csv export into the ledger",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags:  []cli.Flag{backendFlag()},
				Action: r.LedgerImport,
			},
			{
				Name:  "delete",
				Usage: "Forget a migrated video so it is uploaded again",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "key"},
				},
				Flags:  []cli.Flag{backendFlag()},
				Action: r.LedgerDelete,
			},
		},
	}
}

func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Migration run history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only runs with this status",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.RunsList,
			},
			{
				Name:  "show",
				Usage: "Show a run and its item outcomes",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.RunsShow,
			},
		},
	}
}

// apiCommand handles direct Google API calls
func apiCommand(r *Runner) *cli.Command {
	hostFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "host",
			Usage: "photos or youtube",
			Value: "photos",
		}
	}

	return &cli.Command{
		Name:  "api",
		Usage: "Direct authorized Google API calls",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the JSON response",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					hostFlag(),
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					hostFlag(),
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}
