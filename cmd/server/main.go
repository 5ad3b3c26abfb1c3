package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HMasataka/devserve/internal/config"
	"github.com/HMasataka/devserve/pkg/port"
	"github.com/HMasataka/devserve/pkg/static"
	"github.com/HMasataka/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	if err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run はサーバーを起動し、ctxがキャンセルされるまで配信する
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "TOML config file path")
	root := fs.String("root", "", "directory to serve")
	startPort := fs.Int("port", 0, "first port to try")
	count := fs.Int("count", 0, "number of ports to try")
	debug := fs.Bool("debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	cfg = cfg.Merge(config.Config{
		Server: config.ServerConfig{Root: *root},
		Port:   config.PortConfig{Start: *startPort, Count: *count},
		Log:    config.LogConfig{Debug: *debug},
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(logging.NewHandler(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	})))
	slog.SetDefault(logger)

	p, err := port.Find(ctx, cfg.PortOptions())
	if err != nil {
		return err
	}

	s, err := static.New(cfg.StaticOptions(p, logger))
	if err != nil {
		return err
	}

	if err := s.Listen(ctx); err != nil {
		return err
	}

	url, err := s.URL()
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Serving %s on %s\n", s.Root(), url)
	slog.Debug("server started", slog.String("root", s.Root()), slog.Int("port", p))

	defer fmt.Fprintln(stdout, "Server stopped cleanly.")

	return s.Serve(ctx)
}
