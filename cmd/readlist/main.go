package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	idArg := func(name, usage string, action cli.ActionFunc, flags ...cli.Flag) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "<id>",
			Flags:     flags,
			Action:    action,
		}
	}

	return &cli.App{
		Name:      "readlist",
		Usage:     "A scriptable reading list",
		Version:   "0.1.0",
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"READLIST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database file path (sqlite driver)",
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "Storage driver: sqlite, redis or memory",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a url to the reading list",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Title (default: the url host)"},
					&cli.StringFlag{Name: "description", Usage: "Description"},
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Tag (repeatable)"},
				},
				Action: addItem,
			},
			{
				Name:  "list",
				Usage: "List items of a tab",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tab",
						Value: "active",
						Usage: "active or completed",
					},
					&cli.StringSliceFlag{
						Name:    "tag",
						Aliases: []string{"t"},
						Usage:   "Only items carrying every given tag",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only items with this status (unread, reading, completed)",
					},
					&cli.BoolFlag{
						Name:    "favorites",
						Aliases: []string{"f"},
						Usage:   "Only favorite items",
					},
					&cli.StringFlag{
						Name:    "since",
						Aliases: []string{"s"},
						Usage:   "Only items created since duration (e.g., 7d, 2w, 3m, 1y)",
					},
					&cli.StringFlag{
						Name:  "sort",
						Usage: "<created|updated|completed|title|clicks>_<asc|desc>",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Usage:   "Maximum number of items to return (0: all)",
					},
				},
				Action: listItems,
			},
			idArg("show", "Show item details", showItem),
			idArg("edit", "Edit an item (its url cannot change)", editItem,
				&cli.StringFlag{Name: "title", Usage: "New title"},
				&cli.StringFlag{Name: "description", Usage: "New description"},
				&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Replace tags (repeatable)"},
				&cli.BoolFlag{Name: "clear-tags", Usage: "Remove every tag"},
			),
			idArg("remove", "Remove an item", removeItem),
			{
				Name:      "status",
				Usage:     "Change the reading status of an item",
				ArgsUsage: "<id> <unread|reading|completed>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "memo", Aliases: []string{"m"}, Usage: "Completion memo"},
					&cli.StringFlag{Name: "on", Usage: "Completion date (YYYY-MM-DD, default: now)"},
				},
				Action: changeStatus,
			},
			idArg("favorite", "Toggle the favorite flag", toggleFavorite),
			idArg("open", "Count a visit and print the url", openItem,
				&cli.BoolFlag{Name: "browser", Aliases: []string{"b"}, Usage: "Also open it in the default browser"},
			),
			{
				Name:   "tags",
				Usage:  "List registered tags and how many items use them",
				Action: listTags,
			},
			{
				Name:      "tag-add",
				Usage:     "Register a tag",
				ArgsUsage: "<tag>",
				Action:    addTag,
			},
			{
				Name:      "tag-remove",
				Usage:     "Delete a tag and strip it from every item",
				ArgsUsage: "<tag>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
				},
				Action: removeTag,
			},
			{
				Name:      "import",
				Usage:     "Import links from an OPML file",
				ArgsUsage: "<opml-file>",
				Action:    importOPML,
			},
			{
				Name:  "export",
				Usage: "Export the reading list to OPML",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: exportOPML,
			},
			{
				Name:      "import-feed",
				Usage:     "Add the entries of an RSS/Atom feed as unread items",
				ArgsUsage: "<feed-url>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Extra tag for every entry (repeatable)"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Import at most this many entries (0: all)"},
				},
				Action: importFeed,
			},
			{
				Name:   "info",
				Usage:  "Show storage details and tab counts",
				Action: showInfo,
			},
		},
	}
}
