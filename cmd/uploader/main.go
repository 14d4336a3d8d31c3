package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/avetisov/docpilot/internal/cli"
	"github.com/avetisov/docpilot/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	code := app.Run(ctx, os.Args[1:])
	_ = app.Close()
	stop()
	os.Exit(code)
}
