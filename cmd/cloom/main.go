package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/corpusloom/corpusloom/internal/cli"
	"github.com/corpusloom/corpusloom/internal/logger"
	"github.com/corpusloom/corpusloom/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.RootCmd()
	root.Version = fmt.Sprintf("%s (built %s, sqlite driver %s)", version, buildTime, storage.DriverName)

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
