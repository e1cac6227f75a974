// Package transform resolves single image paths from template data
// (frontmatter values, shortcode arguments) into delivery URLs.
//
// Unlike the Markdown rewrite path, template rendering can wait: the upload
// runs to completion and the returned canonical URL is what gets cached and
// returned. Errors propagate to the caller and abort the template render
// that asked.
package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"text/template"

	"git.home.luguber.info/inful/imgcdn/internal/cache"
	"git.home.luguber.info/inful/imgcdn/internal/cloudinary"
	"git.home.luguber.info/inful/imgcdn/internal/metrics"
)

// Transformer converts relative image paths into delivery URLs, uploading
// on first use.
type Transformer struct {
	builder  cloudinary.URLBuilder
	cache    *cache.Cache
	uploader cloudinary.Uploader
	width    int
	recorder metrics.Recorder
}

// New wires the transformer. recorder may be nil.
func New(builder cloudinary.URLBuilder, c *cache.Cache, uploader cloudinary.Uploader, width int, recorder metrics.Recorder) *Transformer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Transformer{
		builder:  builder,
		cache:    c,
		uploader: uploader,
		width:    width,
		recorder: recorder,
	}
}

// Resolve turns src, relative to the file that referenced it, into a
// delivery URL with the base transform and an explicit width override.
// width <= 0 falls back to the configured target width.
//
// The cache key is the resolved path — a different key space from the
// Markdown rewriter's literal-src keys, so the same image may legitimately
// be cached once per entry point. A cache hit returns the stored URL even
// when the requested width differs from the one the entry was created with.
func (t *Transformer) Resolve(ctx context.Context, src, from string, width int) (string, error) {
	if width <= 0 {
		width = t.width
	}

	resolved := filepath.Join(filepath.Dir(from), src)

	if url, ok := t.cache.Get(resolved); ok {
		t.recorder.IncCacheHit(metrics.EntryTemplate)
		if err := t.cache.Save(); err != nil {
			return "", fmt.Errorf("persist url cache: %w", err)
		}
		return url, nil
	}
	t.recorder.IncCacheMiss(metrics.EntryTemplate)

	result, err := t.uploader.Upload(ctx, resolved, t.builder.Folder)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", resolved, err)
	}

	url := t.builder.InsertTransform(result.SecureURL, width)
	if err := t.cache.Put(resolved, url); err != nil {
		return "", fmt.Errorf("persist url cache: %w", err)
	}
	return url, nil
}

// FuncMap exposes the transformer to text/html templates rendered for the
// file at from:
//
//	{{ imgcdn .Frontmatter.cover }}
//	{{ imgcdn .Frontmatter.cover 1200 }}
func (t *Transformer) FuncMap(ctx context.Context, from string) template.FuncMap {
	return template.FuncMap{
		"imgcdn": func(src string, width ...int) (string, error) {
			w := 0
			if len(width) > 0 {
				w = width[0]
			}
			return t.Resolve(ctx, src, from, w)
		},
	}
}
