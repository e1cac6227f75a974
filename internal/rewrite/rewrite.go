// Package rewrite points Markdown image references at the image CDN.
//
// The transformer runs inside goldmark's synchronous parse, which offers no
// suspension point, so uploads triggered here are fire-and-forget: the new
// src is *predicted* from the service's naming convention, never taken from
// an upload response. The background queue performs the real upload and can
// be drained after the build.
package rewrite

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/imgcdn/internal/cache"
	"git.home.luguber.info/inful/imgcdn/internal/cloudinary"
	"git.home.luguber.info/inful/imgcdn/internal/metrics"
	"git.home.luguber.info/inful/imgcdn/internal/queue"
)

var sourcePathKey = parser.NewContextKey()

// WithSourcePath records the path of the document about to be parsed.
// Relative image references are resolved against its directory. Without it,
// relative sources are resolved against the working directory.
func WithSourcePath(pc parser.Context, path string) {
	pc.Set(sourcePathKey, path)
}

func sourcePath(pc parser.Context) string {
	if v := pc.Get(sourcePathKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Scheduler accepts uploads that will complete after the parse returns.
type Scheduler interface {
	Enqueue(job queue.Job) error
}

// Transformer rewrites image nodes in place during the AST transform phase.
type Transformer struct {
	builder   cloudinary.URLBuilder
	cache     *cache.Cache
	scheduler Scheduler
	width     int
	recorder  metrics.Recorder
}

// NewTransformer wires the rewriter. scheduler may be nil (prediction and
// caching still happen; nothing is uploaded), as may recorder.
func NewTransformer(builder cloudinary.URLBuilder, c *cache.Cache, scheduler Scheduler, width int, recorder metrics.Recorder) *Transformer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Transformer{
		builder:   builder,
		cache:     c,
		scheduler: scheduler,
		width:     width,
		recorder:  recorder,
	}
}

// Transform implements parser.ASTTransformer.
func (t *Transformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	docPath := sourcePath(pc)

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || !hasInlineChildren(n) {
			return ast.WalkContinue, nil
		}

		// Only the first child is considered a candidate: an image preceded
		// by other inline content on the same line is left alone.
		img, ok := n.FirstChild().(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}

		t.rewriteImage(img, docPath)
		return ast.WalkContinue, nil
	})

	if err := t.cache.Save(); err != nil {
		slog.Warn("Failed to persist URL cache after document rewrite", "doc", docPath, "error", err)
	}
}

func (t *Transformer) rewriteImage(img *ast.Image, docPath string) {
	src := string(img.Destination)
	if src == "" {
		return
	}

	// Animated images are never rewritten. The match is case-sensitive on
	// purpose: ".GIF" goes through like any other asset.
	if filepath.Ext(src) == ".gif" {
		return
	}

	finalURL := src
	if !t.builder.IsDelivery(src) {
		if cached, ok := t.cache.Get(src); ok {
			t.recorder.IncCacheHit(metrics.EntryMarkdown)
			finalURL = cached
		} else {
			t.recorder.IncCacheMiss(metrics.EntryMarkdown)
			finalURL = t.builder.Delivery(cloudinary.FileName(src))
			// The literal src string is the key, exactly as written in the
			// document.
			if err := t.cache.Put(src, finalURL); err != nil {
				slog.Warn("Failed to cache predicted URL", "src", src, "error", err)
			}
			t.schedule(src, docPath, finalURL)
		}
		img.Destination = []byte(finalURL)
	}

	img.SetAttributeString("srcset", []byte(t.srcSet(finalURL)))
	img.SetAttributeString("loading", []byte("lazy"))
	img.SetAttributeString("sizes", []byte(t.sizes()))
}

func (t *Transformer) schedule(src, docPath, predictedURL string) {
	if t.scheduler == nil {
		return
	}

	local := src
	if !filepath.IsAbs(local) && docPath != "" {
		local = filepath.Join(filepath.Dir(docPath), src)
	}

	err := t.scheduler.Enqueue(queue.Job{
		LocalPath:    local,
		Folder:       t.builder.Folder,
		PredictedURL: predictedURL,
	})
	if err != nil {
		slog.Warn("Failed to schedule image upload; predicted URL will dangle",
			"src", src, "predicted_url", predictedURL, "error", err)
	}
}

// srcSet advertises four width variants: 3x the target width (listed
// twice), the target width, and a fixed 300.
func (t *Transformer) srcSet(url string) string {
	widths := []int{t.width * 3, t.width * 3, t.width, 300}
	entries := make([]string, 0, len(widths))
	for _, w := range widths {
		entries = append(entries, t.builder.WidthVariant(url, w)+" "+strconv.Itoa(w)+"w")
	}
	return strings.Join(entries, ", ")
}

func (t *Transformer) sizes() string {
	return fmt.Sprintf("(max-width: %dpx) 100vw, %dpx", t.width, t.width)
}

// hasInlineChildren reports whether n is a block whose children are inline
// nodes (the goldmark equivalent of an inline token).
func hasInlineChildren(n ast.Node) bool {
	switch n.(type) {
	case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
		return n.HasChildren()
	default:
		return false
	}
}

// Extension registers the transformer with a goldmark instance.
type Extension struct {
	transformer *Transformer
}

// NewExtension wraps a Transformer as a goldmark.Extender.
func NewExtension(t *Transformer) *Extension {
	return &Extension{transformer: t}
}

// Extend implements goldmark.Extender.
func (e *Extension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithASTTransformers(
			util.Prioritized(e.transformer, 500),
		),
	)
}
