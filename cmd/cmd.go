// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// setupCommand initializes configuration, the database and the download directory.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml, initialize the database and the download directory",
		Action: r.Setup,
	}
}

// authCommand handles Google authorization for the CLI
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Google Drive authorization",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Google in the browser and store the credential",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
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
				Usage:  "Show the stored credential",
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Remove the stored credential",
				Action: r.AuthLogout,
			},
		},
	}
}

// foldersCommand lists Drive folders
func foldersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "folders",
		Usage: "List Google Drive folders",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Follow page tokens until every folder is listed",
			},
			&cli.StringFlag{
				Name:  "page-token",
				Usage: "Continue a previous listing",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
				Value: true,
			},
		},
		Action: r.Folders,
	}
}

// filesCommand lists downloadable documents in a folder
func filesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "files",
		Usage: "List downloadable documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "folder",
				Aliases: []string{"f"},
				Usage:   "Folder ID to list (default: My Drive root)",
				Value:   "root",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Follow page tokens until every file is listed",
			},
			&cli.StringFlag{
				Name:  "page-token",
				Usage: "Continue a previous listing",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
				Value: true,
			},
		},
		Action: r.Files,
	}
}

func downloadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Download root (default: downloads.dir from config)",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Summary format: text, markdown, csv or json",
			Value: "text",
		},
		&cli.StringFlag{
			Name:    "report",
			Aliases: []string{"o"},
			Usage:   "Also write the batch report to this path (format from extension)",
		},
		&cli.BoolFlag{
			Name:  "no-history",
			Usage: "Do not record the batch in the history database",
		},
	}
}

// downloadCommand fetches files or whole folders
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download documents from Google Drive",
		Commands: []*cli.Command{
			{
				Name:      "files",
				Usage:     "Download files by ID",
				ArgsUsage: "FILE_ID...",
				Flags:     downloadFlags(),
				Action:    r.DownloadFiles,
			},
			{
				Name:      "folders",
				Usage:     "Download every allowed document directly inside each folder",
				ArgsUsage: "FOLDER_ID...",
				Flags:     downloadFlags(),
				Action:    r.DownloadFolders,
			},
		},
	}
}

// historyCommand shows recorded download batches
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded download batches",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of batches to show",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only show batches of this kind (files or folders)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print one batch report",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report format: text, markdown, csv or json",
						Value: "text",
					},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "file",
				Usage: "Show every recorded download of one file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.HistoryFile,
			},
		},
	}
}

// serveCommand starts the web relay
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the browser-driven relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port from config)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive browsing.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse Drive folders and download documents interactively",
		Action:  r.TUI,
	}
}
