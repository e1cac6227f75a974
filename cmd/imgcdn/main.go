package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/imgcdn"
	"git.home.luguber.info/inful/imgcdn/internal/config"
	"git.home.luguber.info/inful/imgcdn/internal/verify"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"imgcdn.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Rewrite struct {
		Output string   `short:"o" help:"Output directory for rewritten HTML" default:"./site"`
		Paths  []string `arg:"" name:"path" help:"Markdown files or directories to process"`
	} `cmd:"" help:"Rewrite image references in Markdown documents and upload them"`

	Resolve struct {
		Image string `arg:"" help:"Image path relative to --from"`
		From  string `required:"" help:"File that references the image"`
		Width int    `help:"Width override (defaults to configured width)"`
	} `cmd:"" help:"Resolve a single image path to its delivery URL (uploading on first use)"`

	Verify struct {
		Dir string `arg:"" help:"Generated site directory" default:"./site"`
	} `cmd:"" help:"Check generated HTML for delivery URLs the service never received"`

	Watch struct {
		Dir    string `arg:"" help:"Directory of Markdown sources to watch"`
		Output string `short:"o" help:"Output directory for rewritten HTML" default:"./site"`
	} `cmd:"" help:"Rewrite on change until interrupted"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	ctx := kong.Parse(&CLI)

	// Credentials commonly live in .env during local use; absence is fine.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "rewrite <path>":
		cfg := mustLoadConfig()
		if err := runRewrite(cfg, CLI.Rewrite.Paths, CLI.Rewrite.Output); err != nil {
			slog.Error("Rewrite failed", "error", err)
			os.Exit(1)
		}
	case "resolve <image>":
		cfg := mustLoadConfig()
		if err := runResolve(cfg, CLI.Resolve.Image, CLI.Resolve.From, CLI.Resolve.Width); err != nil {
			slog.Error("Resolve failed", "error", err)
			os.Exit(1)
		}
	case "verify <dir>":
		cfg := mustLoadConfig()
		if err := runVerify(cfg, CLI.Verify.Dir); err != nil {
			slog.Error("Verify failed", "error", err)
			os.Exit(1)
		}
	case "watch <dir>":
		cfg := mustLoadConfig()
		if err := runWatch(cfg, CLI.Watch.Dir, CLI.Watch.Output); err != nil {
			slog.Error("Watch failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Configuration written", "path", CLI.Config)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

func runResolve(cfg *config.Config, image, from string, width int) error {
	p, err := imgcdn.New(cfg, imgcdn.Options{})
	if err != nil {
		return err
	}

	url, err := p.Resolve(context.Background(), image, from, width)
	if err != nil {
		return err
	}
	fmt.Println(url)

	finishCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return p.Finish(finishCtx)
}

func runVerify(cfg *config.Config, dir string) error {
	slog.Info("Verifying delivery URLs", "dir", dir, "base_url", cfg.BaseURL)

	report, err := verify.New(cfg.BaseURL).VerifyDir(context.Background(), dir)
	if err != nil {
		return err
	}

	slog.Info("Verification completed", "checked", report.Checked, "missing", len(report.Missing))
	for _, url := range report.Missing {
		slog.Warn("Delivery URL does not resolve (upload may have failed)", "url", url)
	}
	if len(report.Missing) > 0 {
		return fmt.Errorf("%d delivery URL(s) missing on the service", len(report.Missing))
	}
	return nil
}

func runWatch(cfg *config.Config, dir, output string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := imgcdn.New(cfg, imgcdn.Options{})
	if err != nil {
		return err
	}

	if err := watchAndRewrite(ctx, p, dir, output); err != nil {
		return err
	}

	slog.Info("Shutdown signal received, draining uploads...")
	finishCtx, finishCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer finishCancel()
	return p.Finish(finishCtx)
}
