package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goalgrid/goalgrid-gateway/internal/cli"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cli.ExitError
	}
	// the gateway logs at info level, a command line user only wants to see problems
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(cfg, cli.Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return cli.ExitError
	}
	defer app.Close()
	return app.Run(ctx, os.Args[1:])
}
