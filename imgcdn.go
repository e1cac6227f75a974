// Package imgcdn offloads local images referenced by Markdown documents and
// template data to an image CDN, rewriting references to delivery URLs with
// responsive variants. The local-path-to-URL mapping is memoized in a JSON
// cache that survives across builds.
//
// The package is meant to be wired into a host site builder: the goldmark
// extension handles Markdown image nodes, the template FuncMap handles
// image paths arriving through frontmatter or template data. Both share one
// cache and one uploader; they do not otherwise coordinate.
package imgcdn

import (
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"

	"git.home.luguber.info/inful/imgcdn/internal/cache"
	"git.home.luguber.info/inful/imgcdn/internal/cloudinary"
	"git.home.luguber.info/inful/imgcdn/internal/config"
	"git.home.luguber.info/inful/imgcdn/internal/journal"
	"git.home.luguber.info/inful/imgcdn/internal/metrics"
	"git.home.luguber.info/inful/imgcdn/internal/queue"
	"git.home.luguber.info/inful/imgcdn/internal/rewrite"
	"git.home.luguber.info/inful/imgcdn/internal/transform"
)

// Options carries optional Pipeline collaborators.
type Options struct {
	// Recorder receives cache and upload metrics. Defaults to a no-op.
	Recorder metrics.Recorder
	// Uploader overrides the HTTP upload client (tests, dry runs).
	Uploader cloudinary.Uploader
}

// Pipeline owns the shared state behind both entry points for the lifetime
// of one build process.
type Pipeline struct {
	cfg         *config.Config
	cache       *cache.Cache
	builder     cloudinary.URLBuilder
	queue       *queue.Queue
	journal     *journal.Journal
	rewriter    *rewrite.Transformer
	transformer *transform.Transformer
}

// New validates the configuration and wires the pipeline. A configuration
// error (missing account name or credentials) fails here, before either
// integration point exists.
func New(cfg *config.Config, opts Options) (*Pipeline, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := cache.New(cfg.Cache.Dir, cfg.Cache.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize url cache: %w", err)
	}

	builder := cloudinary.URLBuilder{
		BaseURL:   cfg.BaseURL,
		CloudName: cfg.CloudName,
		Transform: cfg.Transform,
		Folder:    cfg.Folder,
	}

	uploader := opts.Uploader
	if uploader == nil {
		uploader = cloudinary.NewClient(cfg.APIBase, cfg.CloudName, cfg.APIKey, cfg.APISecret)
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	var jnl *journal.Journal
	if cfg.Uploads.Journal != "" {
		jnl, err = journal.Open(cfg.Uploads.Journal)
		if err != nil {
			return nil, fmt.Errorf("failed to open upload journal: %w", err)
		}
	}

	q := queue.New(uploader, cfg.Uploads.Workers, queue.Options{
		Journal:  jnl,
		Recorder: recorder,
	})

	return &Pipeline{
		cfg:         cfg,
		cache:       c,
		builder:     builder,
		queue:       q,
		journal:     jnl,
		rewriter:    rewrite.NewTransformer(builder, c, q, cfg.Width, recorder),
		transformer: transform.New(builder, c, uploader, cfg.Width, recorder),
	}, nil
}

// Extender returns the goldmark extension implementing the Markdown rewrite
// path. Callers must put the current document's path into the parse context
// via WithSourcePath for relative references to resolve.
func (p *Pipeline) Extender() goldmark.Extender {
	return rewrite.NewExtension(p.rewriter)
}

// WithSourcePath records the path of the document about to be parsed.
func WithSourcePath(pc parser.Context, path string) {
	rewrite.WithSourcePath(pc, path)
}

// Resolve is the template path: it uploads (awaited) on first use and
// returns the delivery URL for src relative to the referencing file.
func (p *Pipeline) Resolve(ctx context.Context, src, from string, width int) (string, error) {
	return p.transformer.Resolve(ctx, src, from, width)
}

// FuncMap exposes the template path as an "imgcdn" template function for
// templates rendered on behalf of the file at from.
func (p *Pipeline) FuncMap(ctx context.Context, from string) template.FuncMap {
	return p.transformer.FuncMap(ctx, from)
}

// CachePath returns the location of the on-disk URL cache.
func (p *Pipeline) CachePath() string {
	return p.cache.Path()
}

// Finish drains outstanding background uploads, persists the cache a final
// time and closes the journal. It returns an error when ctx expires before
// the queue empties; failed uploads are reported through the logs and the
// journal, not as an error.
func (p *Pipeline) Finish(ctx context.Context) error {
	failed, err := p.queue.Drain(ctx)
	p.queue.Close()
	if failed > 0 {
		slog.Warn("Some background uploads failed; generated pages may link at missing resources", "failed", failed)
	}

	if saveErr := p.cache.Save(); saveErr != nil && err == nil {
		err = saveErr
	}
	if p.journal != nil {
		if closeErr := p.journal.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
