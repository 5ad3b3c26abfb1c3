package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/HMasataka/devserve/pkg/opener"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	o := opener.New(opener.DefaultOptions())
	if err := o.Run(context.Background()); err != nil {
		slog.Error("failed to open file", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
