package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"invoicedash/internal/app"
	"invoicedash/internal/config"
)

func main() {
	cfg, err := config.Load()
	must(err)
	app.InitLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	must(err)
	defer store.Close()

	l, err := app.NewListener(ctx, cfg, store)
	must(err)
	must(l.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
