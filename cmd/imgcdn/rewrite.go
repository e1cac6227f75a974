package main

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"

	"git.home.luguber.info/inful/imgcdn"
	"git.home.luguber.info/inful/imgcdn/internal/config"
)

func runRewrite(cfg *config.Config, paths []string, output string) error {
	p, err := imgcdn.New(cfg, imgcdn.Options{})
	if err != nil {
		return err
	}

	md := goldmark.New(goldmark.WithExtensions(p.Extender()))

	files, err := collectMarkdownFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		slog.Warn("No Markdown files found", "paths", paths)
	}

	slog.Info("Rewriting documents", "files", len(files), "output", output)
	for _, file := range files {
		if err := rewriteFile(md, file.path, filepath.Join(output, file.rel)); err != nil {
			return err
		}
	}

	// Uploads queued during the rewrites complete here.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := p.Finish(finishCtx); err != nil {
		return err
	}

	slog.Info("Rewrite completed", "files", len(files), "cache", p.CachePath())
	return nil
}

type markdownFile struct {
	path string // source location
	rel  string // output-relative location with .html extension
}

func collectMarkdownFiles(paths []string) ([]markdownFile, error) {
	var files []markdownFile
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}

		if !info.IsDir() {
			files = append(files, markdownFile{path: root, rel: htmlName(filepath.Base(root))})
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".md") {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, markdownFile{path: path, rel: htmlName(rel)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func htmlName(rel string) string {
	return strings.TrimSuffix(rel, ".md") + ".html"
}

func rewriteFile(md goldmark.Markdown, src, dst string) error {
	source, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}

	pc := parser.NewContext()
	imgcdn.WithSourcePath(pc, src)

	var buf bytes.Buffer
	if err := md.Convert(source, &buf, parser.WithContext(pc)); err != nil {
		return fmt.Errorf("failed to convert %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}

	slog.Debug("Document rewritten", "src", src, "dst", dst)
	return nil
}
