package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/manga-downloadr/internal/download"
	"github.com/dtnitsch/manga-downloadr/internal/status"
	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/help"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	app := &cli.App{
		Name:  "manga-downloadr",
		Usage: "Download a manga and compile it into PDF volumes",
		Description: "Crawls the chapter listing at --url, downloads every page image and\n" +
			"compiles them into volumes of fixed size. Progress is checkpointed after\n" +
			"each stage, so re-running the same --name resumes where it stopped.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "URL of the manga's chapter listing",
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Job name, used for the checkpoint and output folder",
			},
			&cli.StringFlag{
				Name:    "directory",
				Aliases: []string{"d"},
				Value:   models.DefaultOutputRoot,
				Usage:   "Output root directory",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only log errors",
			},
		},
		Action: download.DownloadAction,
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show checkpoint progress and the last run of a job",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Job name",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "directory",
						Aliases: []string{"d"},
						Value:   models.DefaultOutputRoot,
						Usage:   "Output root directory",
					},
				},
				Action: status.StatusAction,
			},
			{
				Name:  "quickstart",
				Usage: "Print a quick reference as yaml",
				Action: func(c *cli.Context) error {
					fmt.Fprint(c.App.Writer, help.ColdstartYAML)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("manga-downloadr failed", "error", err)
		os.Exit(1)
	}
}
