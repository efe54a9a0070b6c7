package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/readlist/feed"
	"github.com/robertmeta/readlist/library"
	"github.com/robertmeta/readlist/logger"
	"github.com/robertmeta/readlist/model"
	"github.com/robertmeta/readlist/opml"
	"github.com/robertmeta/readlist/view"
)

func outputJSON(c *cli.Context, v interface{}) error {
	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func notFound(id string) error {
	return cli.Exit(fmt.Sprintf("Item not found: %s", id), ExitDataError)
}

func addItem(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist add <url>", ExitUsageError)
	}

	draft := model.Draft{
		URL:         c.Args().Get(0),
		Title:       c.String("title"),
		Description: c.String("description"),
		Tags:        c.StringSlice("tag"),
	}

	return withLibrary(c, func(s *session) (interface{}, error) {
		item, err := s.lib.AddURL(draft)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to add item: %v", err), ExitDataError)
		}
		return map[string]interface{}{
			"success": true,
			"item":    item,
		}, nil
	})
}

func listItems(c *cli.Context) error {
	filter, err := view.BuildFilter(
		c.String("tab"),
		c.StringSlice("tag"),
		c.String("status"),
		c.Bool("favorites"),
		c.String("since"),
		time.Now(),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid list options: %v", err), ExitUsageError)
	}

	state := view.NewState()
	state.SwitchTab(filter.Tab)
	if c.IsSet("sort") {
		sort, err := view.ParseSort(c.String("sort"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Invalid list options: %v", err), ExitUsageError)
		}
		if err := state.SetSort(sort); err != nil {
			return cli.Exit(fmt.Sprintf("Invalid list options: %s on the %s tab: %v", sort, filter.Tab, err), ExitUsageError)
		}
	}

	return withLibrary(c, func(s *session) (interface{}, error) {
		if !c.IsSet("sort") && filter.Tab == view.Active {
			// The configured default only applies where it is available.
			_ = state.SetSort(s.cfg.Sort())
		}

		all := s.lib.URLs()
		items := view.Apply(all, filter, state.Sort, view.WithLanguage(s.cfg.Tag()))
		if limit := c.Int("limit"); limit > 0 && len(items) > limit {
			items = items[:limit]
		}

		active, completed := view.Counts(all)
		return map[string]interface{}{
			"tab":  filter.Tab,
			"sort": state.Sort.String(),
			"counts": map[string]int{
				"active":    active,
				"completed": completed,
			},
			"count": len(items),
			"items": items,
		}, nil
	})
}

func showItem(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist show <id>", ExitUsageError)
	}
	id := c.Args().Get(0)

	return withLibrary(c, func(s *session) (interface{}, error) {
		item, ok := s.lib.Get(id)
		if !ok {
			return nil, notFound(id)
		}
		return item, nil
	})
}

func editItem(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist edit <id> [--title ...] [--description ...] [--tag ...]", ExitUsageError)
	}
	id := c.Args().Get(0)

	return withLibrary(c, func(s *session) (interface{}, error) {
		item, ok := s.lib.Get(id)
		if !ok {
			return nil, notFound(id)
		}

		if c.IsSet("title") {
			item.Title = c.String("title")
		}
		if c.IsSet("description") {
			item.Description = c.String("description")
		}
		if c.Bool("clear-tags") {
			item.Tags = nil
		}
		if c.IsSet("tag") {
			item.Tags = c.StringSlice("tag")
		}

		updated, err := s.lib.UpdateURL(item)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to update item: %v", err), ExitDataError)
		}
		return map[string]interface{}{
			"success": true,
			"item":    updated,
		}, nil
	})
}

func removeItem(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist remove <id>", ExitUsageError)
	}
	id := c.Args().Get(0)

	return withLibrary(c, func(s *session) (interface{}, error) {
		if err := s.lib.DeleteURL(id); err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to remove item: %v", err), ExitDataError)
		}
		return map[string]interface{}{
			"success": true,
			"id":      id,
		}, nil
	})
}

func changeStatus(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("Usage: readlist status <id> <unread|reading|completed>", ExitUsageError)
	}
	id := c.Args().Get(0)

	status, err := model.ParseStatus(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	var opts []library.StatusOption
	if c.IsSet("memo") {
		opts = append(opts, library.WithMemo(c.String("memo")))
	}
	if c.IsSet("on") {
		on, err := time.ParseInLocation("2006-01-02", c.String("on"), time.Local)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Invalid --on date: %v", err), ExitUsageError)
		}
		opts = append(opts, library.CompletedOn(on))
	}

	return withLibrary(c, func(s *session) (interface{}, error) {
		item, err := s.lib.ChangeStatus(id, status, opts...)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to change status: %v", err), ExitDataError)
		}
		return map[string]interface{}{
			"success": true,
			"item":    item,
		}, nil
	})
}

func toggleFavorite(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist favorite <id>", ExitUsageError)
	}
	id := c.Args().Get(0)

	return withLibrary(c, func(s *session) (interface{}, error) {
		item, err := s.lib.ToggleFavorite(id)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to toggle favorite: %v", err), ExitDataError)
		}
		return map[string]interface{}{
			"success":     true,
			"id":          id,
			"is_favorite": item.IsFavorite,
		}, nil
	})
}

func openItem(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist open <id> [--browser]", ExitUsageError)
	}
	id := c.Args().Get(0)

	return withLibrary(c, func(s *session) (interface{}, error) {
		url, err := s.lib.OpenURL(id)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to open item: %v", err), ExitDataError)
		}

		result := map[string]interface{}{
			"url":    url,
			"opened": false,
		}
		if c.Bool("browser") {
			if err := openInBrowser(url); err != nil {
				s.log.Warn("could not start browser", logger.String("url", url), logger.Error(err))
				result["error"] = err.Error()
			} else {
				result["opened"] = true
			}
		}
		return result, nil
	})
}

type tagInfo struct {
	Name  string `json:"name"`
	Items int    `json:"items"`
}

func listTags(c *cli.Context) error {
	return withLibrary(c, func(s *session) (interface{}, error) {
		tags := s.lib.Tags()
		out := make([]tagInfo, 0, len(tags))
		for _, tag := range tags {
			out = append(out, tagInfo{Name: tag, Items: s.lib.TagUsage(tag)})
		}
		return map[string]interface{}{
			"count": len(out),
			"tags":  out,
		}, nil
	})
}

func addTag(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist tag-add <tag>", ExitUsageError)
	}
	tag := strings.TrimSpace(c.Args().Get(0))

	return withLibrary(c, func(s *session) (interface{}, error) {
		if err := s.lib.AddTag(tag); err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to add tag: %v", err), ExitUsageError)
		}
		return map[string]interface{}{
			"success": true,
			"tag":     tag,
			"tags":    s.lib.Tags(),
		}, nil
	})
}

func removeTag(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist tag-remove <tag> [--yes]", ExitUsageError)
	}
	tag := strings.TrimSpace(c.Args().Get(0))

	confirm := func(tag string, affected int) bool {
		if c.Bool("yes") {
			return true
		}
		return prompt(c.App.Reader, c.App.ErrWriter, library.ConfirmMessage(tag, affected))
	}

	return withLibrary(c, func(s *session) (interface{}, error) {
		affected, deleted, err := s.lib.RemoveTag(tag, confirm)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to remove tag: %v", err), ExitUsageError)
		}
		return map[string]interface{}{
			"tag":      tag,
			"affected": affected,
			"deleted":  deleted,
		}, nil
	})
}

// prompt asks a yes/no question; anything but y or yes declines.
func prompt(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

type importResult struct {
	imported int
	skipped  int
	errors   []string
}

// importDrafts adds every draft whose url is not already on the list.
func importDrafts(lib *library.Library, drafts []model.Draft) importResult {
	var res importResult

	seen := make(map[string]bool)
	for _, item := range lib.URLs() {
		seen[item.URL] = true
	}

	for _, draft := range drafts {
		url := strings.TrimSpace(draft.URL)
		if seen[url] {
			res.skipped++
			continue
		}
		if _, err := lib.AddURL(draft); err != nil {
			res.skipped++
			res.errors = append(res.errors, fmt.Sprintf("%s: %v", draft.URL, err))
			continue
		}
		seen[url] = true
		res.imported++
	}
	return res
}

func importOPML(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist import <opml-file>", ExitUsageError)
	}

	opmlPath := c.Args().Get(0)

	file, err := os.Open(opmlPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open OPML file: %v", err), ExitDataError)
	}
	defer file.Close()

	drafts, err := opml.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	return withLibrary(c, func(s *session) (interface{}, error) {
		res := importDrafts(s.lib, drafts)
		s.log.Info("opml imported",
			logger.String("file", opmlPath),
			logger.Int("imported", res.imported),
			logger.Int("skipped", res.skipped))

		return map[string]interface{}{
			"success":  true,
			"imported": res.imported,
			"skipped":  res.skipped,
			"total":    len(drafts),
			"errors":   res.errors,
		}, nil
	})
}

func exportOPML(c *cli.Context) error {
	outputPath := c.String("output")

	return withLibrary(c, func(s *session) (interface{}, error) {
		items := s.lib.URLs()

		var writer io.Writer = c.App.Writer
		if outputPath != "" {
			file, err := os.Create(outputPath)
			if err != nil {
				return nil, cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
			}
			defer file.Close()
			writer = file
		}

		if err := opml.Generate(writer, items); err != nil {
			return nil, cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
		}

		// If outputting to file, also return JSON status
		if outputPath != "" {
			return map[string]interface{}{
				"success": true,
				"file":    outputPath,
				"count":   len(items),
			}, nil
		}
		return nil, nil
	})
}

func importFeed(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: readlist import-feed <feed-url>", ExitUsageError)
	}
	feedURL := c.Args().Get(0)

	src, drafts, err := feed.NewFetcher().Fetch(c.Context, feedURL)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to fetch feed: %v", err), ExitDataError)
	}

	if limit := c.Int("limit"); limit > 0 && len(drafts) > limit {
		drafts = drafts[:limit]
	}
	if extra := c.StringSlice("tag"); len(extra) > 0 {
		for i := range drafts {
			drafts[i].Tags = append(drafts[i].Tags, extra...)
		}
	}

	return withLibrary(c, func(s *session) (interface{}, error) {
		res := importDrafts(s.lib, drafts)
		s.log.Info("feed imported",
			logger.String("feed", feedURL),
			logger.Int("imported", res.imported),
			logger.Int("skipped", res.skipped))

		return map[string]interface{}{
			"success":  true,
			"feed":     src.Title,
			"imported": res.imported,
			"skipped":  res.skipped,
			"total":    len(drafts),
			"errors":   res.errors,
		}, nil
	})
}

func showInfo(c *cli.Context) error {
	return withLibrary(c, func(s *session) (interface{}, error) {
		active, completed := view.Counts(s.lib.URLs())
		info := map[string]interface{}{
			"driver": s.cfg.Driver,
			"counts": map[string]int{
				"active":    active,
				"completed": completed,
			},
			"tags": len(s.lib.Tags()),
		}

		if s.sqlite != nil {
			// Open may have queued repairs; report what is on disk after them.
			if err := s.lib.Flush(c.Context); err != nil {
				return nil, cli.Exit(fmt.Sprintf("Failed to save changes: %v", err), ExitDataError)
			}
			entries, err := s.sqlite.Entries(c.Context)
			if err != nil {
				return nil, cli.Exit(fmt.Sprintf("Failed to read storage: %v", err), ExitDataError)
			}
			info["path"] = s.cfg.SQLitePath
			info["keys"] = entries
		}
		return info, nil
	})
}
