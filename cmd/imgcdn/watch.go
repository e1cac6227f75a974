package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/imgcdn"
)

// watchAndRewrite processes every Markdown file under dir once, then keeps
// rewriting files as they change until ctx is cancelled. Uploads queued
// along the way are drained by the caller.
func watchAndRewrite(ctx context.Context, p *imgcdn.Pipeline, dir, output string) error {
	md := goldmark.New(goldmark.WithExtensions(p.Extender()))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Watch the whole tree; fsnotify does not recurse on its own.
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	// Initial pass so the output starts complete.
	files, err := collectMarkdownFiles([]string{dir})
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := rewriteFile(md, file.path, filepath.Join(output, file.rel)); err != nil {
			return err
		}
	}

	slog.Info("Watching for changes", "dir", dir, "files", len(files))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			handleEvent(md, watcher, event, dir, output)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", werr)
		}
	}
}

func handleEvent(md goldmark.Markdown, watcher *fsnotify.Watcher, event fsnotify.Event, dir, output string) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := watcher.Add(event.Name); err != nil {
				slog.Warn("Failed to watch new directory", "dir", event.Name, "error", err)
			}
		}
		return
	}

	if !strings.HasSuffix(event.Name, ".md") {
		return
	}

	rel, err := filepath.Rel(dir, event.Name)
	if err != nil {
		slog.Warn("Ignoring file outside watch root", "path", event.Name)
		return
	}

	slog.Info("Change detected", "file", event.Name)
	if err := rewriteFile(md, event.Name, filepath.Join(output, htmlName(rel))); err != nil {
		slog.Error("Failed to rewrite changed file", "file", event.Name, "error", err)
	}
}
